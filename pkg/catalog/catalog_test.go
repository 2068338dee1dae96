package catalog

import (
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"
)

const sampleCSV = "\ufeffID,Level,Topic,Word,Article,Meaning,Example\n" +
	"a1-apfel,A1,food,Apfel,der,apple,Der Apfel ist rot.\n" +
	"a1-brot,A1,food,Brot,das,bread,\n" +
	"a1-hund,a1,animals,Hund,der,dog,Der Hund bellt.\n" +
	",A2,travel,Bahnhof,der,train station,\n" +
	"x-1,C2,misc,Weltanschauung,die,worldview,\n" +
	"a1-apfel,A1,food,Apfel,der,duplicate,\n" +
	",A1,food,,,,\n"

func TestParseCSVAndIndex(t *testing.T) {
	words, err := ParseCSV(strings.NewReader(sampleCSV))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if len(words) != 6 {
		t.Fatalf("expected 6 rows with a word, got %d", len(words))
	}
	if words[3].ID != "der-bahnhof" {
		t.Fatalf("expected derived id, got %q", words[3].ID)
	}

	c := New(words)
	if c.Len() != 4 {
		t.Fatalf("expected unknown level and duplicate skipped, got %d words", c.Len())
	}

	w, err := c.WordByID("A1", "a1-apfel")
	if err != nil {
		t.Fatalf("lookup failed: %v", err)
	}
	if w.Meaning != "apple" || w.Article != "der" || w.Topic != "food" {
		t.Fatalf("unexpected word: %+v", w)
	}
	if _, err := c.WordByID("a1", "a1-hund"); err != nil {
		t.Fatalf("expected case-insensitive level, got %v", err)
	}
	if _, err := c.WordByID("A1", "missing"); !errors.Is(err, ErrWordNotFound) {
		t.Fatalf("expected ErrWordNotFound, got %v", err)
	}
	if _, err := c.WordByID("B2", "a1-apfel"); !errors.Is(err, ErrUnknownLevel) {
		t.Fatalf("expected ErrUnknownLevel for empty level, got %v", err)
	}
	if _, err := c.WordByID("Z9", "a1-apfel"); !errors.Is(err, ErrUnknownLevel) {
		t.Fatalf("expected ErrUnknownLevel for invalid level, got %v", err)
	}

	food, err := c.WordsByLevelTopic("A1", "food")
	if err != nil {
		t.Fatalf("topic lookup failed: %v", err)
	}
	if len(food) != 2 || food[0].ID != "a1-apfel" || food[1].ID != "a1-brot" {
		t.Fatalf("unexpected food words: %+v", food)
	}
	all, err := c.WordsByLevelTopic("A1", "")
	if err != nil || len(all) != 3 {
		t.Fatalf("expected whole level, got %d, %v", len(all), err)
	}
	none, err := c.WordsByLevelTopic("A1", "weather")
	if err != nil || len(none) != 0 {
		t.Fatalf("expected no words for unknown topic, got %+v, %v", none, err)
	}

	topics, err := c.Topics("A1")
	if err != nil {
		t.Fatalf("topics failed: %v", err)
	}
	if !slices.Equal(topics, []string{"animals", "food"}) {
		t.Fatalf("unexpected topics: %v", topics)
	}

	found, err := c.Find("der-bahnhof")
	if err != nil || found.Level != "A2" {
		t.Fatalf("expected cross-level find, got %+v, %v", found, err)
	}
}

func TestParseCSVMissingColumns(t *testing.T) {
	_, err := ParseCSV(strings.NewReader("id,topic\n1,food\n"))
	if err == nil || !strings.Contains(err.Error(), "level, word") {
		t.Fatalf("expected missing column error, got %v", err)
	}
	if _, err := ParseCSV(strings.NewReader("")); !errors.Is(err, errEmptyCatalog) {
		t.Fatalf("expected empty catalog error, got %v", err)
	}
}

func TestReturnedSlicesAreCopies(t *testing.T) {
	c := New([]Word{{ID: "1", Level: "B1", Topic: "work", Word: "Arbeit"}})
	words, err := c.WordsByLevelTopic("B1", "work")
	if err != nil {
		t.Fatalf("lookup failed: %v", err)
	}
	words[0].Word = "changed"
	again, _ := c.WordsByLevelTopic("B1", "work")
	if again[0].Word != "Arbeit" {
		t.Fatalf("catalog mutated through returned slice")
	}
}

func TestLoadFileCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "words.csv")
	if err := os.WriteFile(path, []byte(sampleCSV), 0o644); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	c, err := LoadFile(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if c.Len() != 4 {
		t.Fatalf("expected 4 words, got %d", c.Len())
	}
}

func TestLoadFileXLSX(t *testing.T) {
	path := filepath.Join(t.TempDir(), "words.xlsx")

	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	rows := [][]interface{}{
		{"id", "level", "topic", "word", "article", "meaning", "example"},
		{"b1-wohnung", "B1", "home", "Wohnung", "die", "apartment", "Die Wohnung ist hell."},
		{"b1-miete", "B1", "home", "Miete", "die", "rent", ""},
		{"b2-vertrag", "B2", "work", "Vertrag", "der", "contract", ""},
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			t.Fatalf("cell name failed: %v", err)
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			t.Fatalf("set row failed: %v", err)
		}
	}
	if err := f.SaveAs(path); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	c, err := LoadFile(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if c.Len() != 3 {
		t.Fatalf("expected 3 words, got %d", c.Len())
	}
	w, err := c.WordByID("B1", "b1-wohnung")
	if err != nil {
		t.Fatalf("lookup failed: %v", err)
	}
	if w.Example != "Die Wohnung ist hell." {
		t.Fatalf("unexpected example: %q", w.Example)
	}
}

func TestLoadFileRejectsUnknownExtension(t *testing.T) {
	if _, err := LoadFile("words.json"); err == nil {
		t.Fatalf("expected error for unsupported extension")
	}
}
