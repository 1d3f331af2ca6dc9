package platform

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookup(t *testing.T) {
	p, err := Lookup("foodpanda")
	require.NoError(t, err)
	assert.Same(t, Foodpanda, p)

	p, err = Lookup("  FoodPanda ")
	require.NoError(t, err)
	assert.Same(t, Foodpanda, p)

	_, err = Lookup("grabfood")
	assert.ErrorIs(t, err, ErrUnsupportedPlatform)
	assert.Contains(t, err.Error(), "foodpanda")
}

func TestFoodpandaDescriptorComplete(t *testing.T) {
	p := Foodpanda
	assert.Equal(t, "https://www.foodpanda.my/", p.LandingURL)

	lists := map[string]int{
		"logged-in signals":  len(p.Signals.LoggedIn),
		"logged-out signals": len(p.Signals.LoggedOut),
		"login affordance":   len(p.Login.Affordance),
		"email":              len(p.Login.Email),
		"next":               len(p.Login.Next),
		"password":           len(p.Login.Password),
		"submit":             len(p.Login.Submit),
		"second factor":      len(p.Login.SecondFactor),
		"consent":            len(p.Consent),
		"address":            len(p.Address),
		"suggestion":         len(p.Suggestion),
		"search":             len(p.Search),
	}
	for name, n := range lists {
		assert.NotZero(t, n, name)
	}
	assert.Len(t, p.Address, 3)
	assert.Equal(t, `input[placeholder="Enter your full address"]`, p.Address[0].Query, "most specific strategy first")
	assert.NotEmpty(t, p.Results.Card)
	assert.Equal(t, Names(), []string{"foodpanda"})
}
