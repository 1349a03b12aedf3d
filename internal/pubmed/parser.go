package pubmed

import (
	"encoding/xml"
	"fmt"
	"strings"

	"github.com/medbrief/newsroom/internal/provenance"
	"github.com/medbrief/newsroom/internal/pubdate"
	"github.com/medbrief/newsroom/internal/record"
)

// flatText captures the flattened character data of an element, including
// text inside inline markup like <i> and <sub> that eUtils embeds in titles
// and abstracts.
type flatText string

func (t *flatText) UnmarshalXML(d *xml.Decoder, start xml.StartElement) error {
	var b strings.Builder
	depth := 1
	for depth > 0 {
		tok, err := d.Token()
		if err != nil {
			return err
		}
		switch v := tok.(type) {
		case xml.StartElement:
			depth++
		case xml.EndElement:
			depth--
		case xml.CharData:
			b.Write(v)
		}
	}
	*t = flatText(b.String())
	return nil
}

// abstractText is one AbstractText section, with its optional Label
// attribute and flattened body.
type abstractText struct {
	Label string
	Text  string
}

func (a *abstractText) UnmarshalXML(d *xml.Decoder, start xml.StartElement) error {
	for _, attr := range start.Attr {
		if attr.Name.Local == "Label" {
			a.Label = attr.Value
		}
	}
	var text flatText
	if err := text.UnmarshalXML(d, start); err != nil {
		return err
	}
	a.Text = string(text)
	return nil
}

type articleDateXML struct {
	DateType string `xml:"DateType,attr"`
	Year     string `xml:"Year"`
	Month    string `xml:"Month"`
	Day      string `xml:"Day"`
}

type pubDateXML struct {
	Year        string `xml:"Year"`
	Month       string `xml:"Month"`
	Day         string `xml:"Day"`
	MedlineDate string `xml:"MedlineDate"`
}

type authorXML struct {
	CollectiveName string `xml:"CollectiveName"`
	LastName       string `xml:"LastName"`
	ForeName       string `xml:"ForeName"`
}

type articleIDXML struct {
	IDType string `xml:"IdType,attr"`
	Value  string `xml:",chardata"`
}

type articleXML struct {
	Title        flatText         `xml:"ArticleTitle"`
	Dates        []articleDateXML `xml:"ArticleDate"`
	AbstractText []abstractText   `xml:"Abstract>AbstractText"`
	JournalTitle flatText         `xml:"Journal>Title"`
	PubDate      pubDateXML       `xml:"Journal>JournalIssue>PubDate"`
	Authors      []authorXML      `xml:"AuthorList>Author"`
	PubTypes     []flatText       `xml:"PublicationTypeList>PublicationType"`
}

type pubmedArticleXML struct {
	Citation struct {
		PMID    flatText   `xml:"PMID"`
		Article articleXML `xml:"Article"`
		// Some export variants hang the type list off the citation
		// instead of the article.
		PubTypes []flatText `xml:"PublicationTypeList>PublicationType"`
	} `xml:"MedlineCitation"`
	IDs []articleIDXML `xml:"PubmedData>ArticleIdList>ArticleId"`
}

type articleSetXML struct {
	Articles []pubmedArticleXML `xml:"PubmedArticle"`
}

// parseArticleSet decodes an efetch response and returns the records that
// carry every required field. Records failing the requirement are dropped,
// not errors: eUtils routinely returns stubs without abstracts.
func parseArticleSet(data []byte, require Require) ([]record.Record, error) {
	var set articleSetXML
	if err := xml.Unmarshal(data, &set); err != nil {
		return nil, fmt.Errorf("%w: parsing efetch XML: %v", ErrInvalidResponse, err)
	}

	var out []record.Record
	for _, article := range set.Articles {
		rec := extractRecord(article)
		if require.missing(rec) {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

func extractRecord(pa pubmedArticleXML) record.Record {
	article := pa.Citation.Article

	rec := record.Record{
		PMID:    strings.TrimSpace(string(pa.Citation.PMID)),
		Title:   strings.TrimSpace(string(article.Title)),
		Journal: strings.TrimSpace(string(article.JournalTitle)),
		Authors: []string{},
	}

	var parts []string
	for _, node := range article.AbstractText {
		text := strings.TrimSpace(node.Text)
		if text == "" {
			continue
		}
		if node.Label != "" {
			text = node.Label + ": " + text
		}
		parts = append(parts, text)
	}
	rec.Abstract = strings.Join(parts, "\n")

	rec.Year = strings.TrimSpace(article.PubDate.Year)
	if rec.Year == "" {
		if medline := strings.TrimSpace(article.PubDate.MedlineDate); medline != "" {
			rec.Year = medline
			if len(medline) >= 4 && isDigits(medline[:4]) {
				rec.Year = medline[:4]
			}
		}
	}

	rec.PubDate, rec.PubDateRaw, rec.PubDateSource = extractPublicationDate(article)
	if rec.Year == "" && rec.PubDate != "" {
		rec.Year, _, _ = strings.Cut(rec.PubDate, "-")
	}

	for _, author := range article.Authors {
		if collective := strings.TrimSpace(author.CollectiveName); collective != "" {
			rec.Authors = append(rec.Authors, collective)
			continue
		}
		name := strings.TrimSpace(author.ForeName + " " + author.LastName)
		if name != "" {
			rec.Authors = append(rec.Authors, name)
		}
	}

	for _, id := range pa.IDs {
		val := strings.TrimSpace(id.Value)
		if val == "" {
			continue
		}
		switch id.IDType {
		case "doi":
			rec.DOI = val
		case "pmc":
			if !strings.HasPrefix(val, "PMC") {
				val = "PMC" + val
			}
			rec.PMCID = val
		}
	}

	for _, pt := range append(article.PubTypes, pa.Citation.PubTypes...) {
		if text := strings.TrimSpace(string(pt)); text != "" {
			rec.PublicationTypes = append(rec.PublicationTypes, text)
		}
	}

	return rec
}

// extractPublicationDate resolves the publication date triple for an
// article. Electronic publication dates take precedence over the journal
// issue date, which itself may only exist as a loose MedlineDate string.
func extractPublicationDate(article articleXML) (date, raw, source string) {
	for _, ad := range article.Dates {
		if !strings.EqualFold(strings.TrimSpace(ad.DateType), "electronic") {
			continue
		}
		year := strings.TrimSpace(ad.Year)
		month := strings.TrimSpace(ad.Month)
		day := strings.TrimSpace(ad.Day)
		if normalized := pubdate.Normalize(year, month, day); normalized != "" {
			raw := joinParts("-", year, month, day)
			if raw == "" {
				raw = normalized
			}
			return normalized, raw, provenance.DateSourceElectronic
		}
	}

	pd := article.PubDate
	year := strings.TrimSpace(pd.Year)
	month := strings.TrimSpace(pd.Month)
	day := strings.TrimSpace(pd.Day)
	if normalized := pubdate.Normalize(year, month, day); normalized != "" {
		raw := joinParts(" ", year, month, day)
		if raw == "" {
			raw = normalized
		}
		return normalized, raw, provenance.DateSourceJournalIssue
	}

	if medline := strings.TrimSpace(pd.MedlineDate); medline != "" {
		if normalized := pubdate.NormalizeMedline(medline); normalized != "" {
			return normalized, medline, provenance.DateSourceJournalIssue
		}
	}

	return "", "", provenance.DateSourceUnknown
}

func joinParts(sep string, parts ...string) string {
	var kept []string
	for _, part := range parts {
		if part != "" {
			kept = append(kept, part)
		}
	}
	return strings.Join(kept, sep)
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}
