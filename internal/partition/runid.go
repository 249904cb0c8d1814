package partition

import (
	"fmt"

	"github.com/google/uuid"
)

// runNamespace scopes run ids to this generator.
var runNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://github.com/arkilian/abgen/runs"))

// RunID returns a name-based UUID identifying the dataset produced by a seed
// pair and record count. Identical inputs always map to the same id.
func RunID(generalSeed, distributionSeed uint64, numRecords int) string {
	name := fmt.Sprintf("general=%d;distribution=%d;records=%d", generalSeed, distributionSeed, numRecords)
	return uuid.NewSHA1(runNamespace, []byte(name)).String()
}
