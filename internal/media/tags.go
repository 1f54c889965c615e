package media

import (
	"fmt"

	id3v2 "github.com/bogem/id3v2/v2"
)

// Tags are the ID3 fields written to every produced MP3.
type Tags struct {
	Title   string
	Artist  string
	Comment string
}

// Tag writes tags into the MP3 at path, keeping any frames already there.
func Tag(path string, tags Tags) error {
	tag, err := id3v2.Open(path, id3v2.Options{Parse: true})
	if err != nil {
		return fmt.Errorf("opening %s for tagging: %w", path, err)
	}
	defer tag.Close()

	tag.SetDefaultEncoding(id3v2.EncodingUTF8)
	if tags.Title != "" {
		tag.SetTitle(tags.Title)
	}
	if tags.Artist != "" {
		tag.SetArtist(tags.Artist)
	}
	if tags.Comment != "" {
		tag.AddCommentFrame(id3v2.CommentFrame{
			Encoding:    id3v2.EncodingUTF8,
			Language:    "eng",
			Description: "source",
			Text:        tags.Comment,
		})
	}
	if err := tag.Save(); err != nil {
		return fmt.Errorf("saving tags to %s: %w", path, err)
	}
	return nil
}
