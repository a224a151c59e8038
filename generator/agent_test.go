package generator

import (
	"context"
	"strings"
	"testing"
)

func TestPostProcess(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{name: "plain text kept", raw: "  Rates rose.\n\nInflation fell.  ", want: "Rates rose.\n\nInflation fell."},
		{name: "bold removed", raw: "**Rates** rose to 21%.", want: "Rates rose to 21%."},
		{name: "heading and list", raw: "# Headline\n\nBody text.\n\n- first\n- second", want: "Headline\n\nBody text.\n\nfirst\n\nsecond"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := PostProcess(tt.raw)
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Fatalf("got %q, want %q", got, tt.want)
			}
		})
	}
	if _, err := PostProcess(" \n "); err == nil {
		t.Fatal("empty output should fail")
	}
}

func TestSelectKeepsKnownOptions(t *testing.T) {
	client := &scriptedLLM{replies: []string{"Russia, atlantis, ukraine, Russia"}}
	agent, _ := NewAgent(client)
	got, err := agent.Select(context.Background(), "countries", []string{"Russia", "Ukraine", "Poland"}, "text")
	if err != nil {
		t.Fatal(err)
	}
	if strings.Join(got, ",") != "Russia,Ukraine" {
		t.Fatalf("selected %v", got)
	}
	if !strings.Contains(client.prompts[0].User, "AVAILABLE COUNTRIES") {
		t.Fatal("selection prompt missing option header")
	}

	none, err := agent.Select(context.Background(), "countries", nil, "text")
	if err != nil || none != nil || len(client.prompts) != 1 {
		t.Fatal("no options should skip the call")
	}
	if _, err := agent.Select(context.Background(), "planets", []string{"Mars"}, "text"); err == nil {
		t.Fatal("unknown kind should fail")
	}
}

func TestMetadata(t *testing.T) {
	client := &scriptedLLM{replies: []string{
		"```json\n{\"title\": \"Russia hikes rates\", \"hashtags\": [\"#Russia\"], \"byline_value\": \"staff writer\"}\n```",
		"Russia",
		"bne IntelliNews",
		"Banking",
	}}
	agent, _ := NewAgent(client)
	md, err := agent.Metadata(context.Background(), "article", Options{
		Countries:    []string{"Russia"},
		Publications: []string{"bne IntelliNews"},
		Industries:   []string{"Banking"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if md.Title != "Russia hikes rates" || md.Byline != "staff writer" || len(md.Hashtags) != 1 {
		t.Fatalf("metadata = %+v", md)
	}
	if len(md.Countries) != 1 || len(md.Publications) != 1 || len(md.Industries) != 1 {
		t.Fatalf("selections = %v %v %v", md.Countries, md.Publications, md.Industries)
	}
	if strings.Count(client.prompts[1].User, "a") > 4000+200 {
		t.Fatal("selection prompt too long")
	}

	bad, _ := NewAgent(&scriptedLLM{replies: []string{"sorry, no"}})
	if _, err := bad.Metadata(context.Background(), "article", Options{}); err == nil {
		t.Fatal("non-JSON metadata should fail")
	}
}
