package engine

import (
	"strconv"

	"github.com/google/uuid"

	"github.com/chazu/kerf/pkg/feature"
)

// idNamespace scopes derived feature ids.
var idNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://github.com/chazu/kerf/feature"))

// DeriveID returns a stable id for a feature declared without one. The id
// depends on the feature content and its ordinal in the declaring file, so
// two identical anonymous features still get distinct ids.
func DeriveID(f feature.Feature, ordinal int) (string, error) {
	f.ID = ""
	enc, err := f.Canonical()
	if err != nil {
		return "", err
	}
	enc = append(enc, '#')
	enc = strconv.AppendInt(enc, int64(ordinal), 10)
	return uuid.NewSHA1(idNamespace, enc).String(), nil
}
