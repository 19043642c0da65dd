package api

import (
	"fmt"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/eihwaz/internal/models"
)

// CreateNodeRequest is the request body for creating a node.
type CreateNodeRequest struct {
	Name     string  `json:"name"`
	Type     string  `json:"type"`
	ParentID *string `json:"parent_id"`
	Template string  `json:"template,omitempty"`
	Icon     string  `json:"icon,omitempty"`
	Active   bool    `json:"active,omitempty"`
}

// Validate enforces the caller-side naming contract: the store itself does
// not reject blank names, the surfaces do.
func (r CreateNodeRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Name, validation.Required, validation.By(notBlank)),
		validation.Field(&r.Type, validation.Required,
			validation.In(string(models.TypeFolder), string(models.TypeLeaf))),
	)
}

// UpdateNodeRequest is a partial node update; absent fields stay unchanged.
type UpdateNodeRequest struct {
	Name   *string `json:"name,omitempty"`
	Active *bool   `json:"active,omitempty"`
}

// Validate rejects blank names when a name is given.
func (r UpdateNodeRequest) Validate() error {
	if r.Name != nil {
		if err := notBlank(*r.Name); err != nil {
			return fmt.Errorf("name: %w", err)
		}
	}
	return nil
}

// MoveNodeRequest names the new parent; null parent_id moves to root level.
type MoveNodeRequest struct {
	ParentID *string `json:"parent_id"`
}

// ReorderNodeRequest positions a node within its sibling group.
type ReorderNodeRequest struct {
	Index int `json:"index"`
}

// Validate rejects negative target indexes.
func (r ReorderNodeRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Index, validation.Min(0)),
	)
}

// SelectRequest sets the selection; null id clears it.
type SelectRequest struct {
	ID *string `json:"id"`
}

// UpdateContentRequest is a partial content update for the selected leaf.
type UpdateContentRequest struct {
	Icon     *string         `json:"icon,omitempty"`
	Markdown *string         `json:"markdown,omitempty"`
	Fields   *[]models.Field `json:"fields,omitempty"`
	Tags     *[]string       `json:"tags,omitempty"`
	Links    *[]string       `json:"links,omitempty"`
}

// ExportFileRequest names the snapshot file to write into the snapshots dir.
type ExportFileRequest struct {
	Filename string `json:"filename"`
}

// Validate keeps the filename inside the snapshots directory.
func (r ExportFileRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Filename, validation.Required, validation.By(safeFilename)),
	)
}

// SuggestionsResponse wraps extracted wikilink and tag suggestions.
type SuggestionsResponse struct {
	Links []Suggestion `json:"links"`
	Tags  []string     `json:"tags"`
}

// SelectionResponse reports the current selection and its loaded content.
type SelectionResponse struct {
	ID      string          `json:"id"`
	Content *models.Content `json:"content"`
}

func notBlank(value any) error {
	s, _ := value.(string)
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("must not be blank")
	}
	return nil
}

func safeFilename(value any) error {
	s, _ := value.(string)
	if !strings.HasSuffix(s, ".json") {
		return fmt.Errorf("must end with .json")
	}
	if strings.ContainsAny(s, "/\\") || s == ".json" || strings.HasPrefix(s, ".") {
		return fmt.Errorf("must be a plain file name")
	}
	return nil
}
