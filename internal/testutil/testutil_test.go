package testutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/superhero-manager/backend/internal/models"
	"gorm.io/gorm"
)

func TestHeroTableName(t *testing.T) {
	testDB := SetupTestDatabase(t)
	defer testDB.Teardown(t)

	stmt := &gorm.Statement{DB: testDB.DB}
	require.NoError(t, stmt.Parse(&models.Hero{}))
	assert.Equal(t, "heroes", stmt.Schema.Table)
}

func TestCleanDatabaseEmptiesEveryTable(t *testing.T) {
	testDB := SetupTestDatabase(t)
	defer testDB.Teardown(t)

	factory := NewHeroFactory(11)
	CreateTestHero(t, testDB.DB, factory.Hero("Marvel"))
	CreateTestHero(t, testDB.DB, factory.Hero("DC"))
	CreateTestUser(t, testDB.DB, "cleaner", "cleaner123", models.RoleViewer)

	CleanDatabase(t, testDB.DB)

	var heroes, users int64
	require.NoError(t, testDB.DB.Model(&models.Hero{}).Count(&heroes).Error)
	require.NoError(t, testDB.DB.Model(&models.User{}).Count(&users).Error)
	assert.Zero(t, heroes)
	assert.Zero(t, users)
}
