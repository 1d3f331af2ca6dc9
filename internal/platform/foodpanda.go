package platform

import (
	"github.com/xkilldash9x/foodscout/api/schemas"
	"github.com/xkilldash9x/foodscout/internal/authstate"
	"github.com/xkilldash9x/foodscout/internal/extract"
)

var css, button = schemas.CSS, schemas.ButtonWithText

// Foodpanda is foodpanda Malaysia.
var Foodpanda = &Platform{
	Name:       "foodpanda",
	LandingURL: "https://www.foodpanda.my/",
	Signals: authstate.Signals{
		LoggedIn: []schemas.Selector{
			css(`img[alt*="avatar"]`),
			css(".user-avatar"),
			css(".profile-menu"),
		},
		LoggedOut: []schemas.Selector{
			css(`a[href*="login"]`),
			button("Log in"),
		},
	},
	Login: LoginSelectors{
		Affordance: []schemas.Selector{
			css(`a[href*="login"]`),
			button("Log in"),
		},
		Email: []schemas.Selector{
			css(`input[type="email"]`),
			css(`input[name*="email"]`),
		},
		Next: []schemas.Selector{
			button("Next"),
			button("Continue"),
		},
		Password: []schemas.Selector{
			css(`input[type="password"]`),
		},
		Submit: []schemas.Selector{
			button("Log in"),
			button("Login"),
			button("Sign in"),
		},
		SecondFactor: []schemas.Selector{
			css(`input[type="tel"]:not([name*="phone"])`),
		},
	},
	Consent: []schemas.Selector{
		button("Accept"),
	},
	Address: []schemas.Selector{
		css(`input[placeholder="Enter your full address"]`),
		css(`input[placeholder*="address"]`),
		css(`input[type="text"]`),
	},
	Suggestion: []schemas.Selector{
		css(".address-autocomplete__item"),
	},
	Search: []schemas.Selector{
		css(`input[placeholder="Search for restaurant or cuisine"]`),
	},
	Results: extract.Mapping{
		Card:         ".vendor-list .vendor-list-item",
		Name:         ".name, h3, .vendor-name",
		Cuisine:      ".cuisine, .vendor-cuisine",
		DeliveryTime: ".delivery-time, .vendor-delivery-time",
		DeliveryFee:  ".delivery-fee, .vendor-delivery-fee",
		Link:         "a",
	},
}
