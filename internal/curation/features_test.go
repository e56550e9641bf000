package curation

import "testing"

func TestExtractFeaturesPlainText(t *testing.T) {
	t.Parallel()

	a := Article{
		Title: "Acme Bank expands",
		Body:  "Acme Bank announced a new platform. Rivals like Bolt Pay responded quickly.",
	}
	features := ExtractFeatures(a, []string{"Acme Bank", "Bolt Pay"})

	if features.WordCount != 12 {
		t.Fatalf("WordCount = %d, want 12", features.WordCount)
	}
	// One mention in the title, one in the body for Acme; one for Bolt.
	if features.CompanyMentions != 3 {
		t.Fatalf("CompanyMentions = %d, want 3", features.CompanyMentions)
	}
	if features.BoilerplateDensity != 0 {
		t.Fatalf("BoilerplateDensity = %f, want 0 for plain text", features.BoilerplateDensity)
	}
}

func TestExtractFeaturesStripsMarkup(t *testing.T) {
	t.Parallel()

	a := Article{
		Body: "<html><body><script>var x = 1;</script><p>Acme Bank posted record quarterly profits today</p> <a href=\"#\">related</a></body></html>",
	}
	features := ExtractFeatures(a, []string{"Acme Bank"})

	if features.WordCount != 8 {
		t.Fatalf("WordCount = %d, want 8 (script content excluded)", features.WordCount)
	}
	if features.CompanyMentions != 1 {
		t.Fatalf("CompanyMentions = %d, want 1", features.CompanyMentions)
	}
	if features.BoilerplateDensity <= 0 || features.BoilerplateDensity >= 1 {
		t.Fatalf("BoilerplateDensity = %f, want a fraction in (0, 1)", features.BoilerplateDensity)
	}
}

func TestExtractFeaturesEmptyBody(t *testing.T) {
	t.Parallel()

	features := ExtractFeatures(Article{Title: "Acme Bank"}, []string{"Acme Bank"})
	if features.WordCount != 0 {
		t.Fatalf("WordCount = %d, want 0", features.WordCount)
	}
}

func TestCountCompanyMentionsCaseInsensitive(t *testing.T) {
	t.Parallel()

	got := countCompanyMentions("ACME BANK met acme bank and Acme Bank", []string{"Acme Bank"})
	if got != 3 {
		t.Fatalf("countCompanyMentions = %d, want 3", got)
	}
}
