package models

// GarmentDescriptor is an immutable catalog entry. The catalog is static and
// built at process start; descriptors are never mutated afterwards.
type GarmentDescriptor struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	ImageSource string `json:"image_url"`
	Description string `json:"description"`
}

var catalog = []GarmentDescriptor{
	{
		ID:          "set-sky-blue",
		Name:        "Sky Blue Yoga Set",
		ImageSource: "https://superbeautiful.de/thumbnail/39/d5/84/1688393421/produktfotoskyblue5_800x800.png",
		Description: "Sky-blue set with a high-neck crop top and perfectly fitting leggings for maximum freedom of movement.",
	},
	{
		ID:          "set-maroon",
		Name:        "Maroon Performance Set",
		ImageSource: "https://superbeautiful.de/thumbnail/d1/a6/9f/1688394345/produktfotored1_800x800.png",
		Description: "The exclusive maroon set combines style with performance. Breathable and opaque.",
	},
	{
		ID:          "set-black",
		Name:        "Midnight Black Set",
		ImageSource: "https://superbeautiful.de/thumbnail/b2/e7/77/1688394134/produktfotoblack6_800x800.png",
		Description: "The classic in midnight black. Timeless design for every workout and everyday life.",
	},
}

// Catalog returns the static garment catalog.
func Catalog() []GarmentDescriptor {
	return catalog
}

// FindGarment looks up a catalog entry by its id.
func FindGarment(id string) (GarmentDescriptor, bool) {
	for _, g := range catalog {
		if g.ID == id {
			return g, true
		}
	}
	return GarmentDescriptor{}, false
}
