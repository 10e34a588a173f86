package pattern

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"golang.org/x/net/html"
)

// container is one candidate gallery cell: an ancestor element holding at
// least one visible image.
type container struct {
	node      *html.Node
	geo       Geometry
	hasGeo    bool
	hasAnchor bool
	imgCount  int
}

// cluster groups containers sharing a structural signature. Document order
// is preserved; the score is recomputed on every append. Clusters live for
// a single analysis pass only.
type cluster struct {
	signature  string
	tagName    string
	classes    []string
	hasAnchor  bool
	imgCount   int
	containers []container
	score      float64
	firstSeen  int
}

// signatureOf builds the composite structural key:
// tagName | sorted class list | has-anchor flag | descendant image count.
func signatureOf(c container) string {
	classes := append([]string(nil), classList(c.node)...)
	sort.Strings(classes)
	return fmt.Sprintf("%s|%s|%t|%d", c.node.Data, strings.Join(classes, "."), c.hasAnchor, c.imgCount)
}

// append adds a container in document order and rescores the cluster.
// Scoring is monotonic in cluster size: appending never lowers the score.
func (cl *cluster) append(c container, tolerance float64) {
	cl.containers = append(cl.containers, c)
	cl.score = cl.computeScore(tolerance)
}

func (cl *cluster) computeScore(tolerance float64) float64 {
	score := float64(10 * len(cl.containers))

	if classesContainAny(cl.classes, "gallery", "grid") {
		score += 50
	}
	if classesContainAny(cl.classes, "item", "card") {
		score += 30
	}
	if cl.hasAnchor {
		score += 20
	}
	if cl.imgCount > 1 {
		// Thumbnail-strip heuristic.
		score += 15
	}
	if cl.gridAligned(tolerance) {
		score += 40
	}
	return score
}

func classesContainAny(classes []string, hints ...string) bool {
	for _, class := range classes {
		lower := strings.ToLower(class)
		for _, hint := range hints {
			if strings.Contains(lower, hint) {
				return true
			}
		}
	}
	return false
}

// gridAligned reports whether at least three containers form a grid-like
// arrangement: comparing every pair's top and left edges within tolerance,
// at least two row-aligned or two column-aligned pairs qualify.
func (cl *cluster) gridAligned(tolerance float64) bool {
	var positioned []Geometry
	for _, c := range cl.containers {
		if c.hasGeo {
			positioned = append(positioned, c.geo)
		}
	}
	if len(positioned) < 3 {
		return false
	}

	rowPairs, colPairs := 0, 0
	for i := 0; i < len(positioned); i++ {
		for j := i + 1; j < len(positioned); j++ {
			if math.Abs(positioned[i].Top-positioned[j].Top) <= tolerance {
				rowPairs++
			}
			if math.Abs(positioned[i].Left-positioned[j].Left) <= tolerance {
				colPairs++
			}
		}
	}
	return rowPairs >= 2 || colPairs >= 2
}
