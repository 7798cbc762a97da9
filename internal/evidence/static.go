package evidence

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/OrbitXSolutions/exam-integrity-service/internal/services"
)

// StaticResolver maps evidence storage refs onto the media gateway that
// authorizes and streams the stored object. It performs no existence check;
// a dangling ref surfaces as a 404 at render time, not here.
type StaticResolver struct {
	baseURL string
}

func NewStaticResolver(baseURL string) *StaticResolver {
	return &StaticResolver{baseURL: strings.TrimRight(baseURL, "/")}
}

func (r *StaticResolver) Resolve(ctx context.Context, evidenceRef string) (*services.EvidenceInfo, error) {
	if evidenceRef == "" {
		return nil, fmt.Errorf("evidence ref must not be empty")
	}
	return &services.EvidenceInfo{
		PreviewURL: fmt.Sprintf("%s?ref=%s", r.baseURL, url.QueryEscape(evidenceRef)),
	}, nil
}
