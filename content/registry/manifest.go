package registry

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// SpriteKind distinguishes single images from sliced sheets.
type SpriteKind string

const (
	SpriteImage SpriteKind = "image"
	SpriteSheet SpriteKind = "spritesheet"
)

// Room points at a compiled level document.
type Room struct {
	ID          string   `json:"id" jsonschema:"title=Room ID,pattern=^[a-z0-9_-]+$,minLength=1,required"`
	RoomDataURL string   `json:"roomDataUrl" jsonschema:"title=Room Data URL,description=Location of the compiled level document.,minLength=1,required"`
	DisplayName string   `json:"displayName,omitempty" jsonschema:"title=Display Name"`
	Spawns      []string `json:"spawns,omitempty" jsonschema:"title=Advertised Spawn IDs"`
}

// FlashcardPack points at a deck payload and carries its integrity metadata.
type FlashcardPack struct {
	ID            string   `json:"id" jsonschema:"title=Pack ID,pattern=^[a-z0-9_-]+$,minLength=1,required"`
	URL           string   `json:"url" jsonschema:"title=Deck URL,minLength=1,required"`
	SchemaVersion int      `json:"schemaVersion" jsonschema:"title=Schema Version,minimum=1,required"`
	Count         int      `json:"count,omitempty" jsonschema:"title=Card Count,minimum=0"`
	ContentHash   string   `json:"contentHash,omitempty" jsonschema:"title=Content Hash,description=Hex SHA-256 of the deck payload."`
	Subjects      []string `json:"subjects,omitempty" jsonschema:"title=Subjects"`
}

// DialogueStory points at an opaque story payload.
type DialogueStory struct {
	ID  string `json:"id" jsonschema:"title=Story ID,pattern=^[a-z0-9_-]+$,minLength=1,required"`
	URL string `json:"url" jsonschema:"title=Story URL,minLength=1,required"`
}

// Sprite describes a drawable resource. URL may be empty, in which case
// consumers derive a default path from the ID.
type Sprite struct {
	ID          string     `json:"id" jsonschema:"title=Sprite ID,pattern=^[a-z0-9_-]+$,minLength=1,required"`
	URL         string     `json:"url,omitempty" jsonschema:"title=Sprite URL"`
	Kind        SpriteKind `json:"kind,omitempty" jsonschema:"title=Sprite Kind,enum=image,enum=spritesheet"`
	FrameWidth  int        `json:"frameWidth,omitempty" jsonschema:"title=Frame Width,minimum=0"`
	FrameHeight int        `json:"frameHeight,omitempty" jsonschema:"title=Frame Height,minimum=0"`
	PortraitURL string     `json:"portraitUrl,omitempty" jsonschema:"title=Portrait URL"`
}

// Prop describes a static decorative resource.
type Prop struct {
	ID   string `json:"id" jsonschema:"title=Prop ID,pattern=^[a-z0-9_-]+$,minLength=1,required"`
	Path string `json:"path,omitempty" jsonschema:"title=Prop Path"`
}

// Outfit describes a layered character clothing resource.
type Outfit struct {
	ID    string `json:"id" jsonschema:"title=Outfit ID,pattern=^[a-z0-9_-]+$,minLength=1,required"`
	URL   string `json:"url,omitempty" jsonschema:"title=Outfit URL"`
	Label string `json:"label,omitempty" jsonschema:"title=Label"`
	Slot  string `json:"slot,omitempty" jsonschema:"title=Equip Slot"`
}

// ManifestDocument is the canonical list form of the manifest. Tooling
// (e.g. schema generators) reflects over this struct; the decoder additionally
// accepts each section as a mapping keyed by entry ID.
type ManifestDocument struct {
	BuildID         string          `json:"buildId,omitempty" jsonschema:"title=Build ID,description=Version token appended to asset URLs for cache busting."`
	Rooms           []Room          `json:"rooms,omitempty" jsonschema:"title=Rooms"`
	FlashcardPacks  []FlashcardPack `json:"flashcards,omitempty" jsonschema:"title=Flashcard Packs"`
	DialogueStories []DialogueStory `json:"dialogue,omitempty" jsonschema:"title=Dialogue Stories"`
	Sprites         []Sprite        `json:"sprites,omitempty" jsonschema:"title=Sprites"`
	Props           []Prop          `json:"props,omitempty" jsonschema:"title=Props"`
	Outfits         []Outfit        `json:"outfits,omitempty" jsonschema:"title=Outfits"`
}

// Manifest is the indexed, immutable runtime view of a parsed manifest.
type Manifest struct {
	BuildID         string
	Rooms           map[string]Room
	FlashcardPacks  map[string]FlashcardPack
	DialogueStories map[string]DialogueStory
	Sprites         map[string]Sprite
	Props           map[string]Prop
	Outfits         map[string]Outfit
}

// Len reports the total number of entries across every kind.
func (m *Manifest) Len() int {
	if m == nil {
		return 0
	}
	return len(m.Rooms) + len(m.FlashcardPacks) + len(m.DialogueStories) + len(m.Sprites) + len(m.Props) + len(m.Outfits)
}

// Document renders the manifest back to its canonical list form with each
// section sorted by ID.
func (m *Manifest) Document() ManifestDocument {
	if m == nil {
		return ManifestDocument{}
	}
	return ManifestDocument{
		BuildID:         m.BuildID,
		Rooms:           sortedValues(m.Rooms, func(r Room) string { return r.ID }),
		FlashcardPacks:  sortedValues(m.FlashcardPacks, func(p FlashcardPack) string { return p.ID }),
		DialogueStories: sortedValues(m.DialogueStories, func(s DialogueStory) string { return s.ID }),
		Sprites:         sortedValues(m.Sprites, func(s Sprite) string { return s.ID }),
		Props:           sortedValues(m.Props, func(p Prop) string { return p.ID }),
		Outfits:         sortedValues(m.Outfits, func(o Outfit) string { return o.ID }),
	}
}

func sortedValues[T any](src map[string]T, id func(T) string) []T {
	if len(src) == 0 {
		return nil
	}
	entries := make([]T, 0, len(src))
	for _, entry := range src {
		entries = append(entries, entry)
	}
	sort.Slice(entries, func(i, j int) bool { return id(entries[i]) < id(entries[j]) })
	return entries
}

func decodeManifest(data []byte) (*Manifest, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("empty manifest document")
	}
	var sections map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &sections); err != nil {
		return nil, err
	}

	m := &Manifest{
		Rooms:           make(map[string]Room),
		FlashcardPacks:  make(map[string]FlashcardPack),
		DialogueStories: make(map[string]DialogueStory),
		Sprites:         make(map[string]Sprite),
		Props:           make(map[string]Prop),
		Outfits:         make(map[string]Outfit),
	}

	if raw, ok := sections["buildId"]; ok {
		if err := json.Unmarshal(raw, &m.BuildID); err != nil {
			return nil, fmt.Errorf("buildId: %w", err)
		}
	}

	rooms, err := decodeSection(sections["rooms"], "rooms", func(r *Room) *string { return &r.ID })
	if err != nil {
		return nil, err
	}
	for _, room := range rooms {
		if strings.TrimSpace(room.RoomDataURL) == "" {
			return nil, fmt.Errorf("room %q missing roomDataUrl", room.ID)
		}
		if err := index(m.Rooms, room.ID, room, "rooms"); err != nil {
			return nil, err
		}
	}

	packs, err := decodeSection(sections["flashcards"], "flashcards", func(p *FlashcardPack) *string { return &p.ID })
	if err != nil {
		return nil, err
	}
	for _, pack := range packs {
		if strings.TrimSpace(pack.URL) == "" {
			return nil, fmt.Errorf("flashcard pack %q missing url", pack.ID)
		}
		if pack.SchemaVersion <= 0 {
			return nil, fmt.Errorf("flashcard pack %q missing schemaVersion", pack.ID)
		}
		if err := index(m.FlashcardPacks, pack.ID, pack, "flashcards"); err != nil {
			return nil, err
		}
	}

	stories, err := decodeSection(sections["dialogue"], "dialogue", func(s *DialogueStory) *string { return &s.ID })
	if err != nil {
		return nil, err
	}
	for _, story := range stories {
		if strings.TrimSpace(story.URL) == "" {
			return nil, fmt.Errorf("dialogue story %q missing url", story.ID)
		}
		if err := index(m.DialogueStories, story.ID, story, "dialogue"); err != nil {
			return nil, err
		}
	}

	sprites, err := decodeSection(sections["sprites"], "sprites", func(s *Sprite) *string { return &s.ID })
	if err != nil {
		return nil, err
	}
	for _, sprite := range sprites {
		switch sprite.Kind {
		case "":
			sprite.Kind = SpriteImage
		case SpriteImage, SpriteSheet:
		default:
			return nil, fmt.Errorf("sprite %q has unknown kind %q", sprite.ID, sprite.Kind)
		}
		if err := index(m.Sprites, sprite.ID, sprite, "sprites"); err != nil {
			return nil, err
		}
	}

	props, err := decodeSection(sections["props"], "props", func(p *Prop) *string { return &p.ID })
	if err != nil {
		return nil, err
	}
	for _, prop := range props {
		if err := index(m.Props, prop.ID, prop, "props"); err != nil {
			return nil, err
		}
	}

	outfits, err := decodeSection(sections["outfits"], "outfits", func(o *Outfit) *string { return &o.ID })
	if err != nil {
		return nil, err
	}
	for _, outfit := range outfits {
		if err := index(m.Outfits, outfit.ID, outfit, "outfits"); err != nil {
			return nil, err
		}
	}

	return m, nil
}

func index[T any](dst map[string]T, id string, entry T, section string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("%s entry missing id", section)
	}
	if _, dup := dst[id]; dup {
		return fmt.Errorf("duplicate id %q in %s", id, section)
	}
	dst[id] = entry
	return nil
}

// decodeSection accepts either a JSON array of entries or an object keyed by
// entry ID. In the object form a missing id field is filled from the key;
// a conflicting id is rejected.
func decodeSection[T any](data json.RawMessage, section string, idField func(*T) *string) ([]T, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}
	switch trimmed[0] {
	case '[':
		var entries []T
		if err := json.Unmarshal(trimmed, &entries); err != nil {
			return nil, fmt.Errorf("%s: %w", section, err)
		}
		return entries, nil
	case '{':
		var object map[string]json.RawMessage
		if err := json.Unmarshal(trimmed, &object); err != nil {
			return nil, fmt.Errorf("%s: %w", section, err)
		}
		ids := make([]string, 0, len(object))
		for id := range object {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		entries := make([]T, 0, len(ids))
		for _, id := range ids {
			var entry T
			if err := json.Unmarshal(object[id], &entry); err != nil {
				return nil, fmt.Errorf("%s entry %q: %w", section, id, err)
			}
			field := idField(&entry)
			if *field == "" {
				*field = id
			} else if *field != id {
				return nil, fmt.Errorf("%s entry id %q does not match key %q", section, *field, id)
			}
			entries = append(entries, entry)
		}
		return entries, nil
	default:
		return nil, fmt.Errorf("%s: unexpected json token %q", section, string(trimmed[:1]))
	}
}

func cloneStrings(src []string) []string {
	if len(src) == 0 {
		return nil
	}
	return append([]string(nil), src...)
}
