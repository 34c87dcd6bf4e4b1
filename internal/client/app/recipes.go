package app

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dmitrijs2005/pantryclient/internal/client/retry"
	"github.com/dmitrijs2005/pantryclient/internal/client/transport"
)

const (
	recipesKey      = "recipes:list"
	recipesPath     = "/recipes"
	generatePath    = "/recipes/generate"
	recipeNamespace = "recipes:"
)

// Recipes returns the saved recipe list, cache-first.
func (a *App) Recipes(ctx context.Context) (json.RawMessage, error) {
	v, _, err := CacheFirst[json.RawMessage](ctx, a, recipesKey, recipesPath, 0)
	return v, err
}

// GenerateRecipes asks the backend for recipes built from ingredients. The
// call uses the long request timeout, is retried when the backend is rate
// limiting or unavailable, and invalidates the cached list.
func (a *App) GenerateRecipes(ctx context.Context, ingredients []string) (json.RawMessage, error) {
	body := map[string]any{"ingredients": ingredients}
	res := retry.Do(ctx, retry.DefaultPolicy(), func(ctx context.Context) transport.Result[json.RawMessage] {
		return transport.Post[json.RawMessage](ctx, a.API, generatePath, body, transport.WithTimeout(a.LongTimeout()))
	})
	if !res.Success {
		return nil, fmt.Errorf("failed to generate recipes: %w", res.Err())
	}
	if _, err := a.Cache.DeletePrefix(ctx, recipeNamespace); err != nil {
		a.logger.Warn(ctx, "failed to invalidate recipe cache", "error", err)
	}
	return res.Data, nil
}
