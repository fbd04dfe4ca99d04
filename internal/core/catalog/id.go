package catalog

import (
	"fmt"
	"strings"
)

// idSeparator joins the provider product key and region key into an
// offering ID. Neither sub-key may contain it, so encoding is a bijection.
const idSeparator = "_"

// EncodeID composes an offering ID from a provider product key and region
// key. It fails if either key is empty or contains the separator, which
// would make the ID ambiguous to decode.
func EncodeID(productKey, regionKey string) (string, error) {
	if productKey == "" || regionKey == "" {
		return "", fmt.Errorf("offering id requires both product and region keys")
	}
	if strings.Contains(productKey, idSeparator) {
		return "", fmt.Errorf("product key %q contains reserved separator %q", productKey, idSeparator)
	}
	if strings.Contains(regionKey, idSeparator) {
		return "", fmt.Errorf("region key %q contains reserved separator %q", regionKey, idSeparator)
	}
	return productKey + idSeparator + regionKey, nil
}

// DecodeID splits an offering ID back into the product key and region key
// it was encoded from. It is the inverse of EncodeID.
func DecodeID(id string) (productKey, regionKey string, err error) {
	parts := strings.Split(id, idSeparator)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("malformed offering id %q: want {product}%s{region}", id, idSeparator)
	}
	return parts[0], parts[1], nil
}
