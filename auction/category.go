package auction

import "strings"

// Category 是封閉的商品分類清單
type Category string

const (
	CategoryElectronics  Category = "electronics"
	CategoryFashion      Category = "fashion"
	CategoryHome         Category = "home"
	CategoryBooks        Category = "books"
	CategorySports       Category = "sports"
	CategoryToys         Category = "toys"
	CategoryBeauty       Category = "beauty"
	CategoryAutomotive   Category = "automotive"
	CategoryCollectibles Category = "collectibles"
	CategoryArt          Category = "art"
	CategoryOther        Category = "other"
)

var Categories = []Category{
	CategoryElectronics,
	CategoryFashion,
	CategoryHome,
	CategoryBooks,
	CategorySports,
	CategoryToys,
	CategoryBeauty,
	CategoryAutomotive,
	CategoryCollectibles,
	CategoryArt,
	CategoryOther,
}

// ParseCategory 將字串轉為分類，大小寫不敏感
func ParseCategory(s string) (Category, bool) {
	c := Category(strings.ToLower(strings.TrimSpace(s)))
	for _, category := range Categories {
		if c == category {
			return c, true
		}
	}
	return "", false
}
