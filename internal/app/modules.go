package app

import (
	"github.com/vk/elgrid/internal/registry"
	"github.com/vk/elgrid/modules/marker"
	"github.com/vk/elgrid/modules/s3"
	"github.com/vk/elgrid/modules/warehouse"
)

// coreModules is the definitive list of all modules that are compiled into
// the elgrid binary.
func coreModules() []registry.Module {
	return []registry.Module{
		&marker.Module{},
		&s3.Module{},
		&warehouse.Module{},
	}
}
