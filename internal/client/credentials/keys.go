package credentials

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dmitrijs2005/pantryclient/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/pantryclient/internal/common"
	"github.com/dmitrijs2005/pantryclient/internal/cryptox"
	"github.com/dmitrijs2005/pantryclient/internal/dbx"
)

const (
	saltKey  = "credential_salt"
	saltSize = 16
)

// OpenSealer builds the sealer protecting the credential record.
//
// With a device secret the key is derived with argon2id from the secret and a
// per-install salt kept in the metadata table. Without one, a random key is
// kept in keyFile.
func OpenSealer(ctx context.Context, db *sql.DB, deviceSecret, keyFile string) (*cryptox.Sealer, error) {
	var key []byte

	if deviceSecret != "" {
		salt, err := ensureSalt(ctx, db)
		if err != nil {
			return nil, err
		}
		key = cryptox.DeriveKey([]byte(deviceSecret), salt)
	} else {
		var err error
		if key, err = cryptox.LoadOrCreateKey(keyFile); err != nil {
			return nil, err
		}
	}
	defer common.WipeByteArray(key)

	return cryptox.NewSealer(key)
}

func ensureSalt(ctx context.Context, db *sql.DB) ([]byte, error) {
	var salt []byte

	err := dbx.WithTx(ctx, db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := metadata.NewSQLiteRepository(tx)

		v, ok, err := repo.Get(ctx, saltKey)
		if err != nil {
			return err
		}
		if ok {
			salt = v
			return nil
		}

		salt = common.GenerateRandByteArray(saltSize)
		return repo.Set(ctx, saltKey, salt)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load credential salt: %w", err)
	}
	return salt, nil
}
