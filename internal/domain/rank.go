package domain

type Rank struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

// Ranks lists the in-game ranks in ascending order with their storefront labels.
var Ranks = []Rank{
	{"Bronze", "Đồng"},
	{"Silver", "Bạc"},
	{"Gold", "Vàng"},
	{"Platinum", "Bạch kim"},
	{"Diamond", "Kim cương"},
	{"Conqueror", "Tinh Anh"},
	{"Grandmaster", "Cao thủ"},
	{"Great Grandmaster", "Đại Cao Thủ"},
	{"Warlord", "Danh Tướng"},
	{"General", "Kiện Tướng"},
	{"Great General", "Đại Kiện Tướng"},
	{"Commander", "Chiến Tướng"},
	{"Warlord Supreme", "Chiến Thần"},
	{"Legendary", "Huyền Thoại"},
}

func IsKnownRank(rank string) bool {
	for _, r := range Ranks {
		if r.Value == rank {
			return true
		}
	}
	return false
}
