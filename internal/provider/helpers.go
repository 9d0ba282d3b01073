package provider

import (
	"github.com/soratane/chardex-go/internal/errors"
	"github.com/soratane/chardex-go/internal/logging"
	"github.com/soratane/chardex-go/internal/media"
)

// parseCategories converts configured category names, dropping unknown ones
// with a warning rather than failing startup.
func parseCategories(names []string) []media.Category {
	out := make([]media.Category, 0, len(names))
	for _, name := range names {
		c, err := media.ParseCategory(name)
		if err != nil {
			logging.Warn("Ignoring unknown category in provider configuration", "category", name)
			continue
		}
		out = append(out, c)
	}
	return out
}

// errorFromStatus builds the error recorded on a ProviderResult for a non-2xx
// response that is not rate limiting.
func errorFromStatus(providerID string, statusCode int) error {
	return errors.Newf("provider returned status %d", statusCode).
		Component("provider").
		Category(errors.CategoryMediaFetch).
		Context("provider", providerID).
		Context("status_code", statusCode).
		Build()
}
