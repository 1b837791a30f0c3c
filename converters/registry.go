package converters

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/darianmavgo/geoio/converters/common"
)

// Registry maps driver names and file extensions to drivers.
type Registry struct {
	mu      sync.RWMutex
	drivers map[string]common.DriverFunction
}

// NewRegistry returns a registry holding drivers.
// If two drivers share a name, or a driver is nil, it panics.
func NewRegistry(drivers ...common.DriverFunction) *Registry {
	r := &Registry{drivers: make(map[string]common.DriverFunction)}
	for _, d := range drivers {
		if err := r.Register(d); err != nil {
			panic(err)
		}
	}
	return r
}

// Register adds driver under its descriptor name.
func (r *Registry) Register(driver common.DriverFunction) error {
	if driver == nil || driver.Descriptor() == nil {
		return fmt.Errorf("converters: Register driver is nil")
	}
	name := driver.Descriptor().Name
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.drivers[name]; dup {
		return fmt.Errorf("converters: Register called twice for driver %s", name)
	}
	r.drivers[name] = driver
	return nil
}

// Get returns the driver registered as name.
func (r *Registry) Get(name string) (common.DriverFunction, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.drivers[name]
	return d, ok
}

// Drivers returns a sorted list of the names of the registered drivers.
func (r *Registry) Drivers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	list := make([]string, 0, len(r.drivers))
	for name := range r.drivers {
		list = append(list, name)
	}
	sort.Strings(list)
	return list
}

// ForPath returns the driver whose import or export formats match the
// longest suffix of path.
func (r *Registry) ForPath(path string) (common.DriverFunction, error) {
	return r.match(path, func(d *common.Descriptor) []string {
		return append(d.ImportFormats(), d.ExportFormats()...)
	})
}

// ForImport returns the driver able to import path.
func (r *Registry) ForImport(path string) (common.DriverFunction, error) {
	return r.match(path, (*common.Descriptor).ImportFormats)
}

// ForExport returns the driver able to export to path.
func (r *Registry) ForExport(path string) (common.DriverFunction, error) {
	return r.match(path, (*common.Descriptor).ExportFormats)
}

func (r *Registry) match(path string, formats func(*common.Descriptor) []string) (common.DriverFunction, error) {
	var (
		best    common.DriverFunction
		bestExt string
	)
	for _, name := range r.Drivers() {
		d, _ := r.Get(name)
		if ext := common.MatchExtension(path, formats(d.Descriptor())); len(ext) > len(bestExt) {
			best, bestExt = d, ext
		}
	}
	if best == nil {
		return nil, common.FormatError("registry", "no driver for this file type").WithPath(path)
	}
	return best, nil
}

// ImportFile imports path with the driver its extension selects.
func (r *Registry) ImportFile(ctx context.Context, engine common.TableEngine, path, table string, opts common.ImportOptions, progress common.Progress) error {
	d, err := r.ForImport(path)
	if err != nil {
		return err
	}
	return d.ImportFile(ctx, engine, path, table, opts, progress)
}

// ExportTable exports table to path with the driver its extension selects.
func (r *Registry) ExportTable(ctx context.Context, engine common.TableEngine, table, path string, opts common.ExportOptions, progress common.Progress) error {
	d, err := r.ForExport(path)
	if err != nil {
		return err
	}
	return d.ExportTable(ctx, engine, table, path, opts, progress)
}
