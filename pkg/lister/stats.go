package lister

// Stats counts the work done by one run.
type Stats struct {
	Pages   int `json:"pages"`
	Origins int `json:"origins"`
}

func (s Stats) Add(other Stats) Stats {
	return Stats{
		Pages:   s.Pages + other.Pages,
		Origins: s.Origins + other.Origins,
	}
}
