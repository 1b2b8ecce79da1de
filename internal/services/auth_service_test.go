package services_test

import (
	"testing"

	"kriptoko/internal/models"
	"kriptoko/internal/repositories"
	"kriptoko/internal/services"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthService_RegisterAndLogin(t *testing.T) {
	userRepo := repositories.NewMockUserRepository()
	auth := services.NewAuthService(userRepo, "test-secret")

	user := &models.User{
		Username: "alice",
		Email:    "alice@example.com",
		Password: "plaintext-password",
	}
	require.NoError(t, auth.RegisterUser(user))
	// The stored password is hashed, never the plaintext.
	assert.NotEqual(t, "plaintext-password", user.Password)

	token, account, err := auth.LoginUser("alice", "plaintext-password")
	require.NoError(t, err)
	require.NotEmpty(t, token)
	require.NotNil(t, account)
	assert.Equal(t, "alice", account.Username)
	// The hash never leaves the service.
	assert.Empty(t, account.Password)

	claims, err := auth.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, user.ID, claims["user_id"])
	assert.Equal(t, "alice", claims["username"])
}

func TestAuthService_ProfileCarriesLoyaltyBalance(t *testing.T) {
	userRepo := repositories.NewMockUserRepository()
	auth := services.NewAuthService(userRepo, "test-secret")

	user := &models.User{
		Username: "alice",
		Email:    "alice@example.com",
		Password: "plaintext-password",
	}
	require.NoError(t, auth.RegisterUser(user))
	require.NoError(t, userRepo.CreditLoyalty(&models.LoyaltyTransaction{
		UserID: user.ID, OrderID: "order-1", Points: 12, Type: "overpayment_credit",
	}))
	require.NoError(t, userRepo.RecordPurchase(user.ID, 50))

	profile, err := auth.Profile(user.ID)
	require.NoError(t, err)
	assert.Equal(t, 12, profile.LoyaltyPoints)
	assert.Equal(t, 1, profile.TotalOrders)
	assert.Empty(t, profile.Password)

	_, err = auth.Profile("missing-user")
	assert.Error(t, err)
}

func TestAuthService_RegisterDuplicateUsername(t *testing.T) {
	userRepo := repositories.NewMockUserRepository()
	auth := services.NewAuthService(userRepo, "test-secret")

	require.NoError(t, auth.RegisterUser(&models.User{
		Username: "alice", Email: "alice@example.com", Password: "password1",
	}))
	err := auth.RegisterUser(&models.User{
		Username: "alice", Email: "other@example.com", Password: "password2",
	})
	assert.Error(t, err)
}

func TestAuthService_LoginWrongPassword(t *testing.T) {
	userRepo := repositories.NewMockUserRepository()
	auth := services.NewAuthService(userRepo, "test-secret")

	require.NoError(t, auth.RegisterUser(&models.User{
		Username: "alice", Email: "alice@example.com", Password: "correct-password",
	}))

	_, _, err := auth.LoginUser("alice", "wrong-password")
	assert.Error(t, err)
	_, _, err = auth.LoginUser("nobody", "whatever")
	assert.Error(t, err)
}

func TestAuthService_ValidateTokenRejectsForeignSecret(t *testing.T) {
	userRepo := repositories.NewMockUserRepository()
	signer := services.NewAuthService(userRepo, "secret-a")
	verifier := services.NewAuthService(userRepo, "secret-b")

	require.NoError(t, signer.RegisterUser(&models.User{
		Username: "bob", Email: "bob@example.com", Password: "password",
	}))
	token, _, err := signer.LoginUser("bob", "password")
	require.NoError(t, err)

	_, err = verifier.ValidateToken(token)
	assert.Error(t, err)
}
