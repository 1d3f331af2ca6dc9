package schemas

// Restaurant is one listing card extracted from a search results page.
type Restaurant struct {
	Name         string `json:"name"`
	Cuisine      string `json:"cuisine"`
	DeliveryTime string `json:"deliveryTime"`
	DeliveryFee  string `json:"deliveryFee"`
	Link         string `json:"link"`
}

// ScrapeResult is the output of one scrape for one query at one location.
type ScrapeResult struct {
	Platform string       `json:"platform"`
	Query    string       `json:"query"`
	Location string       `json:"location"`
	Results  []Restaurant `json:"results"`
}
