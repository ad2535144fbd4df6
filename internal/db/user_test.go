package db

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ukydev/fleet-ledger/internal/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func testUsers(t *testing.T) *MongoUserCollection {
	t.Helper()
	database := testDatabase(t)
	require.NoError(t, EnsureIndexes(context.Background(), database))
	users := NewMongoUserCollection(database)
	fixed := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	users.now = func() time.Time { return fixed }
	return users
}

func dispatcher() models.User {
	return models.User{
		Username:     "dispatcher",
		Email:        "dispatch@fleet.example",
		PasswordHash: "hashedpassword",
		Role:         models.RoleOperator,
		FirstName:    "Dana",
		LastName:     "Ops",
	}
}

func TestMongoUserCollection_NilCollection(t *testing.T) {
	users := &MongoUserCollection{}
	ctx := context.Background()

	assert.ErrorIs(t, users.InsertUser(ctx, dispatcher()), errNilCollection)
	_, err := users.FindUserByUsername(ctx, "dispatcher")
	assert.ErrorIs(t, err, errNilCollection)
	_, err = users.ListUsers(ctx, "")
	assert.ErrorIs(t, err, errNilCollection)
	assert.ErrorIs(t, users.DeleteUser(ctx, primitive.NewObjectID().Hex()), errNilCollection)
	_, err = users.CountUsers(ctx)
	assert.ErrorIs(t, err, errNilCollection)
	_, err = users.ClaimFirstAdmin(ctx, "u1")
	assert.ErrorIs(t, err, errNilCollection)
}

func TestMongoUserCollection_InsertAndFind(t *testing.T) {
	users := testUsers(t)
	ctx := context.Background()

	require.NoError(t, users.InsertUser(ctx, dispatcher()))

	found, err := users.FindUserByUsername(ctx, "dispatcher")
	require.NoError(t, err)
	assert.True(t, found.IsActive)
	assert.False(t, found.ID.IsZero())
	assert.Equal(t, time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC), found.CreatedAt)

	byID, err := users.FindUserByID(ctx, found.ID.Hex())
	require.NoError(t, err)
	assert.Equal(t, found.Email, byID.Email)

	byEmail, err := users.FindUserByEmail(ctx, "dispatch@fleet.example")
	require.NoError(t, err)
	assert.Equal(t, found.ID, byEmail.ID)

	_, err = users.FindUserByID(ctx, "invalid-id")
	assert.ErrorIs(t, err, ErrUserNotFound)
	_, err = users.FindUserByUsername(ctx, "nobody")
	assert.ErrorIs(t, err, ErrUserNotFound)

	assert.ErrorIs(t, users.InsertUser(ctx, dispatcher()), ErrDuplicateUser)
}

func TestMongoUserCollection_ListUsers(t *testing.T) {
	users := testUsers(t)
	ctx := context.Background()

	viewer := dispatcher()
	viewer.Username, viewer.Email, viewer.Role = "auditor", "audit@fleet.example", models.RoleViewer
	require.NoError(t, users.InsertUser(ctx, dispatcher()))
	require.NoError(t, users.InsertUser(ctx, viewer))

	all, err := users.ListUsers(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "auditor", all[0].Username)

	operators, err := users.ListUsers(ctx, models.RoleOperator)
	require.NoError(t, err)
	require.Len(t, operators, 1)
	assert.Equal(t, "dispatcher", operators[0].Username)
}

func TestMongoUserCollection_UpdateDeleteAndLogin(t *testing.T) {
	users := testUsers(t)
	ctx := context.Background()
	require.NoError(t, users.InsertUser(ctx, dispatcher()))
	user, err := users.FindUserByUsername(ctx, "dispatcher")
	require.NoError(t, err)
	id := user.ID.Hex()

	user.FirstName = "Dina"
	require.NoError(t, users.UpdateUser(ctx, id, *user))
	updated, err := users.FindUserByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Dina", updated.FirstName)

	require.NoError(t, users.UpdateLastLogin(ctx, id))
	loggedIn, err := users.FindUserByID(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, loggedIn.LastLogin)

	require.NoError(t, users.DeleteUser(ctx, id))
	assert.ErrorIs(t, users.DeleteUser(ctx, id), ErrUserNotFound)
	assert.ErrorIs(t, users.UpdateUser(ctx, id, *user), ErrUserNotFound)
	_, err = users.FindUserByID(ctx, id)
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestMongoUserCollection_CountAndClaimFirstAdmin(t *testing.T) {
	users := testUsers(t)
	ctx := context.Background()

	n, err := users.CountUsers(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	require.NoError(t, users.InsertUser(ctx, dispatcher()))
	n, err = users.CountUsers(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	var wg sync.WaitGroup
	var won atomic.Int32
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ok, err := users.ClaimFirstAdmin(ctx, fmt.Sprintf("user-%d", i))
			assert.NoError(t, err)
			if ok {
				won.Add(1)
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, int32(1), won.Load())

	ok, err := users.ClaimFirstAdmin(ctx, "late")
	require.NoError(t, err)
	assert.False(t, ok)
}
