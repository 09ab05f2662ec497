package registry

import (
	"workflow-engine/pkg/catalog"
)

// LoadCatalog registers every workflow of cat under policy. Invalid or duplicate
// entries are skipped and returned; the rest are registered.
func (r *Registry) LoadCatalog(cat *catalog.Catalog, policy Policy) (int, []error) {
	var (
		loaded int
		errs   []error
	)
	for _, def := range cat.Workflows {
		if err := r.RegisterWithPolicy(def, policy); err != nil {
			r.logger.Warn("catalog workflow skipped", map[string]interface{}{
				"workflowId": def.ID,
				"error":      err.Error(),
			})
			errs = append(errs, err)
			continue
		}
		loaded++
	}
	return loaded, errs
}

// LoadCatalogFiles loads each path in order. A missing or unreadable file is returned as an error.
func (r *Registry) LoadCatalogFiles(paths []string, policy Policy) (int, []error) {
	var (
		total int
		errs  []error
	)
	for _, path := range paths {
		cat, err := catalog.Load(path)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		n, loadErrs := r.LoadCatalog(cat, policy)
		total += n
		errs = append(errs, loadErrs...)
	}
	return total, errs
}
