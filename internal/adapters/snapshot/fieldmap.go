package snapshot

// FieldMapVersion identifies the alias table below. Bump it when aliases
// change so persisted snapshots can be traced to the mapping that read them.
const FieldMapVersion = 2

// organizationFields maps canonical organization fields to the keys source
// adapters are known to emit, in lookup order.
var organizationFields = map[string][]string{
	"id":               {"id", "organization_id"},
	"name":             {"name", "organization_name", "hospital_name"},
	"country":          {"country"},
	"region":           {"region"},
	"state":            {"state", "province"},
	"city":             {"city", "location"},
	"type":             {"type", "organization_type", "hospital_type"},
	"address":          {"address", "full_address"},
	"phone":            {"phone", "phone_number", "contact_number"},
	"website":          {"website", "url", "web"},
	"certifications":   {"certifications", "certificates", "accreditations"},
	"quality_metrics":  {"quality_metrics", "qualityMetrics"},
	"regional_context": {"regional_context", "regionalContext"},
	"sources":          {"sources", "source", "data_source"},
}

var certificationFields = map[string][]string{
	"name":         {"name", "certification_name", "accreditation_name"},
	"type":         {"type", "certification_type"},
	"standard":     {"standard", "accreditation_standard"},
	"status":       {"status", "accreditation_status"},
	"issuer":       {"issuer", "accrediting_body", "issuing_body"},
	"valid_from":   {"valid_from", "validFrom", "accreditation_date", "issued_date"},
	"valid_until":  {"valid_until", "validUntil", "expiry_date", "expiration_date"},
	"score_impact": {"score_impact", "scoreImpact"},
	"source":       {"source", "data_source"},
}

// lookup returns the first present, non-nil alias of field.
func lookup(rec map[string]any, table map[string][]string, field string) (any, bool) {
	for _, alias := range table[field] {
		if v, ok := rec[alias]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}
