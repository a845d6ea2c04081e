package app

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"minijira/internal/config"
	"minijira/internal/db"
)

func TestSeedIsRepeatable(t *testing.T) {
	ctx := context.Background()
	eng, conn, err := Open(ctx, db.Config{Workspace: t.TempDir()}, zap.NewNop())
	require.NoError(t, err)
	defer conn.Close()
	eng.BcryptCost = bcrypt.MinCost

	cfg := config.Default()
	res, err := Seed(ctx, eng, cfg)
	require.NoError(t, err)
	assert.Equal(t, SeedResult{Departments: 3, Users: 3}, res)

	res, err = Seed(ctx, eng, cfg)
	require.NoError(t, err)
	assert.Equal(t, SeedResult{}, res)

	admin, err := eng.Login(ctx, "admin@demo.com", "Demo123!")
	require.NoError(t, err)
	assert.Equal(t, []string{"ADMIN"}, admin.Roles)
	assert.Equal(t, "dep_ops", admin.Department())
}
