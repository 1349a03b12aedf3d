package provenance

import (
	"testing"

	"github.com/medbrief/newsroom/internal/record"
)

func TestResolveDate(t *testing.T) {
	tests := []struct {
		name string
		in   DateInput
		want PublicationDate
	}{
		{
			name: "complete triple passes through",
			in: DateInput{
				Date:   "2023-11-02",
				Raw:    "2023 Nov 2",
				Source: DateSourceElectronic,
				Year:   "2023",
			},
			want: PublicationDate{Date: "2023-11-02", Raw: "2023 Nov 2", Source: DateSourceElectronic},
		},
		{
			name: "missing raw defaults to date",
			in: DateInput{
				Date:   "2023-11-02",
				Source: DateSourceJournalIssue,
			},
			want: PublicationDate{Date: "2023-11-02", Raw: "2023-11-02", Source: DateSourceJournalIssue},
		},
		{
			name: "invalid source rederived as year fallback",
			in: DateInput{
				Date:   "2023",
				Source: "made_up",
				Year:   "2023",
			},
			want: PublicationDate{Date: "2023", Raw: "2023", Source: DateSourceYearFallback},
		},
		{
			name: "invalid source rederived as unknown",
			in: DateInput{
				Date:   "2023-11-02",
				Source: "",
				Year:   "2023",
			},
			want: PublicationDate{Date: "2023-11-02", Raw: "2023-11-02", Source: DateSourceUnknown},
		},
		{
			name: "unknown is a valid source and survives",
			in: DateInput{
				Date:   "2023-11-02",
				Raw:    "odd row",
				Source: DateSourceUnknown,
			},
			want: PublicationDate{Date: "2023-11-02", Raw: "odd row", Source: DateSourceUnknown},
		},
		{
			name: "year fallback when no date",
			in: DateInput{
				Year: "2021",
			},
			want: PublicationDate{Date: "2021", Raw: "2021", Source: DateSourceYearFallback},
		},
		{
			name: "nothing resolves to unknown",
			in:   DateInput{},
			want: PublicationDate{Source: DateSourceUnknown},
		},
		{
			name: "whitespace only counts as empty",
			in: DateInput{
				Date: "   ",
				Raw:  "  ",
				Year: " 2020 ",
			},
			want: PublicationDate{Date: "2020", Raw: "2020", Source: DateSourceYearFallback},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ResolveDate(tt.in)
			if got != tt.want {
				t.Errorf("ResolveDate(%+v) = %+v, want %+v", tt.in, got, tt.want)
			}
		})
	}
}

func TestResolveDateIsPure(t *testing.T) {
	in := DateInput{Date: "2023-11-02", Source: "junk", Year: "2023"}
	first := ResolveDate(in)
	second := ResolveDate(in)
	if first != second {
		t.Errorf("ResolveDate not deterministic: %+v vs %+v", first, second)
	}
	if in.Source != "junk" {
		t.Errorf("ResolveDate mutated its input: %+v", in)
	}
}

func TestResolveRecordDate(t *testing.T) {
	rec := record.Record{
		Year:          "2022",
		PubDate:       "2022-09",
		PubDateRaw:    "2022 Sep-Oct",
		PubDateSource: DateSourceJournalIssue,
	}
	got := ResolveRecordDate(rec)
	want := PublicationDate{Date: "2022-09", Raw: "2022 Sep-Oct", Source: DateSourceJournalIssue}
	if got != want {
		t.Errorf("ResolveRecordDate() = %+v, want %+v", got, want)
	}

	bare := record.Record{Year: "2022"}
	got = ResolveRecordDate(bare)
	want = PublicationDate{Date: "2022", Raw: "2022", Source: DateSourceYearFallback}
	if got != want {
		t.Errorf("ResolveRecordDate(year only) = %+v, want %+v", got, want)
	}
}
