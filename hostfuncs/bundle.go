package hostfuncs

// Bundle is a pre-configured set of related host functions.
type Bundle interface {
	// Functions returns a map of names to functions.
	Functions() map[string]Func
}

// MapBundle is a Bundle backed by a map.
type MapBundle map[string]Func

func (b MapBundle) Functions() map[string]Func {
	return b
}

// compositeBundle combines multiple bundles into one.
type compositeBundle struct {
	bundles []Bundle
}

func (b *compositeBundle) Functions() map[string]Func {
	result := make(map[string]Func)
	for _, bundle := range b.bundles {
		for name, fn := range bundle.Functions() {
			result[name] = fn
		}
	}
	return result
}

// Bundles combines several bundles. Later bundles win on name collisions.
func Bundles(bundles ...Bundle) Bundle {
	return &compositeBundle{bundles: bundles}
}
