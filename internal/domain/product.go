/**
 * @description
 * The lunchbox product catalog. Products are a fixed list; prices are KRW
 * and always resolved server-side so a client can never name its own price.
 */
package domain

// Product is a purchasable lunchbox item.
type Product struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	UnitPrice     int64  `json:"unit_price"` // KRW
	OriginalPrice int64  `json:"original_price,omitempty"`
	Description   string `json:"description"`
	ImageURL      string `json:"image_url"`
}

var productCatalog = []Product{
	{
		ID:          "lunchbox-1",
		Name:        "벌크업 도시락 1개",
		UnitPrice:   12000,
		Description: "단백질 40g, 650kcal",
		ImageURL:    "/images/lunchbox-1.jpg",
	},
	{
		ID:            "lunchbox-3",
		Name:          "벌크업 도시락 3개 세트",
		UnitPrice:     33000,
		OriginalPrice: 36000,
		Description:   "3일치 세트",
		ImageURL:      "/images/lunchbox-3.jpg",
	},
	{
		ID:            "lunchbox-7",
		Name:          "벌크업 도시락 7개 세트",
		UnitPrice:     75000,
		OriginalPrice: 84000,
		Description:   "1주치 세트",
		ImageURL:      "/images/lunchbox-7.jpg",
	},
}

// Products returns the product catalog.
func Products() []Product {
	out := make([]Product, len(productCatalog))
	copy(out, productCatalog)
	return out
}

// FindProduct looks up a product by ID.
func FindProduct(productID string) (Product, bool) {
	for _, p := range productCatalog {
		if p.ID == productID {
			return p, true
		}
	}
	return Product{}, false
}
