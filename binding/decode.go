package binding

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

type decodeFunc func(data []byte, root any) error

func decoderFor(locator string) (decodeFunc, error) {
	switch ext := extension(locator); ext {
	case ".xml":
		return xml.Unmarshal, nil
	case ".yaml", ".yml":
		return decodeYAML, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
}

// decodeYAML rejects keys the root type does not declare. An empty
// document leaves the root at its zero value.
func decodeYAML(data []byte, root any) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(root); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}
