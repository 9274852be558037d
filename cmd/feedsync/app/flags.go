package app

import (
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/openwrt-feedsync/feedsync/internal/logger"
)

// bindFlags binds each flag to the viper key of the same name, making it
// settable through FEEDSYNC_<NAME> as well
func bindFlags(v *viper.Viper, flags ...*pflag.Flag) {
	for _, flag := range flags {
		if err := v.BindPFlag(flag.Name, flag); err != nil {
			logger.Errorf("Error binding %s flag: %v", flag.Name, err)
		}
	}
}

// newViper returns a viper instance reading FEEDSYNC_* environment variables.
// Every command owns one so flags with the same name do not collide.
func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	return v
}
