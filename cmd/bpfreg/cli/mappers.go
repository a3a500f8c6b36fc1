package cli

import (
	"reflect"

	"github.com/alecthomas/kong"
)

// registryIDMapper creates a Kong mapper for RegistryID.
func registryIDMapper() kong.MapperFunc {
	return func(ctx *kong.DecodeContext, target reflect.Value) error {
		var s string
		if err := ctx.Scan.PopValueInto("id", &s); err != nil {
			return err
		}
		id, err := ParseRegistryID(s)
		if err != nil {
			return err
		}
		target.Set(reflect.ValueOf(id))
		return nil
	}
}

// dbPathMapper creates a Kong mapper for DBPath.
func dbPathMapper() kong.MapperFunc {
	return func(ctx *kong.DecodeContext, target reflect.Value) error {
		var s string
		if err := ctx.Scan.PopValueInto("path", &s); err != nil {
			return err
		}
		dp, err := ParseDBPath(s)
		if err != nil {
			return err
		}
		target.Set(reflect.ValueOf(dp))
		return nil
	}
}
