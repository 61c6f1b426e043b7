package search

import (
	"context"
	"fmt"
	"strings"

	"github.com/taghive/taghive/internal/database"
)

// Document is the three weighted text zones of one searchable row.
// Zone A outranks B outranks C in the stored tsvector.
type Document struct {
	TextA string
	TextB string
	TextC string
}

func (d *Document) addA(parts ...string) { d.TextA = joinZone(d.TextA, parts) }
func (d *Document) addB(parts ...string) { d.TextB = joinZone(d.TextB, parts) }
func (d *Document) addC(parts ...string) { d.TextC = joinZone(d.TextC, parts) }

func joinZone(zone string, parts []string) string {
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if zone == "" {
			zone = p
		} else {
			zone += "\n" + p
		}
	}
	return zone
}

// splitHeaders separates markdown-style text into leading-# header
// lines (with the marker stripped) and everything else. Headers rank
// with titles; the remainder flows into the body zone.
func splitHeaders(text string) (headers, rest string) {
	var hs, rs []string
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if h, ok := headerText(trimmed); ok {
			hs = append(hs, h)
		} else if trimmed != "" {
			rs = append(rs, trimmed)
		}
	}
	return strings.Join(hs, "\n"), strings.Join(rs, "\n")
}

func headerText(line string) (string, bool) {
	n := 0
	for n < len(line) && line[n] == '#' {
		n++
	}
	if n == 0 || n > 6 {
		return "", false
	}
	if n == len(line) {
		return "", true
	}
	if line[n] != ' ' && line[n] != '\t' {
		return "", false
	}
	return strings.TrimSpace(line[n:]), true
}

// BuildObjectDocument assembles the zones for one object from its
// current attribute and data rows. Returns ok=false when the object
// no longer exists.
func BuildObjectDocument(ctx context.Context, q database.Querier, objectID int64) (Document, bool, error) {
	var doc Document
	var objectType, name, description string
	err := q.QueryRow(ctx,
		`SELECT object_type, object_name, object_description FROM objects WHERE object_id = $1`,
		objectID).Scan(&objectType, &name, &description)
	if err != nil {
		if database.IsNotFound(err) {
			return Document{}, false, nil
		}
		return Document{}, false, fmt.Errorf("search: build object %d: %w", objectID, err)
	}

	doc.addA(name)
	h, rest := splitHeaders(description)
	doc.addA(h)
	doc.addB(rest)

	switch objectType {
	case "link":
		var link string
		err := q.QueryRow(ctx,
			`SELECT link FROM links WHERE object_id = $1`, objectID).Scan(&link)
		if err != nil && !database.IsNotFound(err) {
			return Document{}, false, fmt.Errorf("search: build object %d: %w", objectID, err)
		}
		doc.addB(link)
	case "markdown":
		var raw string
		err := q.QueryRow(ctx,
			`SELECT raw_text FROM markdown WHERE object_id = $1`, objectID).Scan(&raw)
		if err != nil && !database.IsNotFound(err) {
			return Document{}, false, fmt.Errorf("search: build object %d: %w", objectID, err)
		}
		h, rest := splitHeaders(raw)
		doc.addA(h)
		doc.addB(rest)
	case "to_do_list":
		rows, err := q.Query(ctx,
			`SELECT item_text, commentary FROM to_do_list_items
			 WHERE object_id = $1 ORDER BY item_number`, objectID)
		if err != nil {
			return Document{}, false, fmt.Errorf("search: build object %d: %w", objectID, err)
		}
		defer rows.Close()
		for rows.Next() {
			var text, commentary string
			if err := rows.Scan(&text, &commentary); err != nil {
				return Document{}, false, err
			}
			doc.addB(text)
			doc.addC(commentary)
		}
		if err := rows.Err(); err != nil {
			return Document{}, false, err
		}
	case "composite":
		// Grid payload contributes nothing; subobjects index themselves.
	}
	return doc, true, nil
}

// BuildTagDocument assembles the zones for one tag.
func BuildTagDocument(ctx context.Context, q database.Querier, tagID int64) (Document, bool, error) {
	var doc Document
	var name, description string
	err := q.QueryRow(ctx,
		`SELECT tag_name, tag_description FROM tags WHERE tag_id = $1`,
		tagID).Scan(&name, &description)
	if err != nil {
		if database.IsNotFound(err) {
			return Document{}, false, nil
		}
		return Document{}, false, fmt.Errorf("search: build tag %d: %w", tagID, err)
	}
	doc.addA(name)
	h, rest := splitHeaders(description)
	doc.addA(h)
	doc.addB(rest)
	return doc, true, nil
}
