package utils

import "testing"

func TestSlugify(t *testing.T) {
	cases := map[string]string{
		"Mobile Legends: Bang Bang": "mobile-legends-bang-bang",
		"  Free Fire  ":             "free-fire",
		"PUBG_Mobile":               "pubg-mobile",
		"ML":                        "ml",
		"--Genshin--Impact--":       "genshin-impact",
		"Valorant (ID)":             "valorant-id",
		"Honkai: Star Rail":         "honkai-star-rail",
		"":                          "",
		"!!!":                       "",
		"Café Ω 2":                  "caf-2",
	}
	for in, want := range cases {
		if got := Slugify(in); got != want {
			t.Errorf("Slugify(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestSlugifyIdempotent(t *testing.T) {
	for _, in := range []string{"Mobile Legends", "free-fire", "A  B  C"} {
		once := Slugify(in)
		if twice := Slugify(once); twice != once {
			t.Errorf("Slugify not idempotent for %q: %q then %q", in, once, twice)
		}
	}
}

func TestProductCode(t *testing.T) {
	if got := ProductCode("mobile-legends", "ML86"); got != "mobile-legends-ml86" {
		t.Errorf("ProductCode = %q", got)
	}
}
