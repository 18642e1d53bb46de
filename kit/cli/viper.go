// Package cli builds cobra commands whose options can be set by flag,
// environment variable or config file.
package cli

import (
	"fmt"
	"os"
	"path"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap/zapcore"
)

// Opt is a single command-line option
type Opt struct {
	DestP   interface{} // pointer to the destination
	Flag    string
	Default interface{}
	Desc    string

	Required bool
}

// NewOpt creates a new command line option.
func NewOpt(destP interface{}, flag string, dflt interface{}, desc string) Opt {
	return Opt{
		DestP:   destP,
		Flag:    flag,
		Default: dflt,
		Desc:    desc,
	}
}

// Program parses CLI options
type Program struct {
	// Run is invoked by cobra on execute.
	Run func() error
	// Name is the name of the program in help usage and the env var prefix.
	Name string
	// Opts are the command line/env var options to the program
	Opts []Opt
}

// NewCommand creates a new cobra command to be executed that respects env vars.
//
// Uses the upper-case version of the program's name as a prefix
// to all environment variables.
//
// Option values are also read from a config file. <NAME>_CONFIG_PATH names
// either the file itself or a directory holding a config.{json,toml,yaml,yml};
// by default the working directory is searched. Flags take precedence over
// environment variables, which take precedence over the config file.
func NewCommand(v *viper.Viper, p *Program) (*cobra.Command, error) {
	cmd := &cobra.Command{
		Use:  p.Name,
		Args: cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return p.Run()
		},
	}

	v.SetEnvPrefix(strings.ToUpper(p.Name))
	v.AutomaticEnv()
	// This normalizes "-" to an underscore in env names.
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	if err := initializeConfig(v); err != nil {
		return nil, err
	}
	if err := BindOptions(v, cmd, p.Opts); err != nil {
		return nil, err
	}
	return cmd, nil
}

func initializeConfig(v *viper.Viper) error {
	configPath := v.GetString("CONFIG_PATH")
	if configPath == "" {
		// Default to looking in the working directory of the running process.
		configPath = "."
	}

	switch strings.ToLower(path.Ext(configPath)) {
	case ".json", ".toml", ".yaml", ".yml":
		v.SetConfigFile(configPath)
	default:
		v.AddConfigPath(configPath)
	}

	if err := v.ReadInConfig(); err != nil && !os.IsNotExist(err) {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return err
		}
	}
	return nil
}

// BindOptions adds opts to the specified command and automatically
// registers those options with viper. A value found in the environment or
// the config file becomes the flag default.
func BindOptions(v *viper.Viper, cmd *cobra.Command, opts []Opt) error {
	flags := cmd.Flags()
	for _, o := range opts {
		fromViper := v.IsSet(o.Flag)

		switch destP := o.DestP.(type) {
		case *string:
			var d string
			if o.Default != nil {
				d = o.Default.(string)
			}
			if fromViper {
				d = v.GetString(o.Flag)
			}
			flags.StringVar(destP, o.Flag, d, o.Desc)
		case *int:
			var d int
			if o.Default != nil {
				d = o.Default.(int)
			}
			if fromViper {
				d = v.GetInt(o.Flag)
			}
			flags.IntVar(destP, o.Flag, d, o.Desc)
		case *int32:
			var d int32
			if o.Default != nil {
				// N.B. since our CLI kit types default values as interface{} and
				// literal numbers get typed as int by default, it's very easy to
				// create an int32 CLI flag with an int default value.
				if i, ok := o.Default.(int); ok {
					d = int32(i)
				} else {
					d = o.Default.(int32)
				}
			}
			if fromViper {
				d = v.GetInt32(o.Flag)
			}
			flags.Int32Var(destP, o.Flag, d, o.Desc)
		case *int64:
			var d int64
			if o.Default != nil {
				if i, ok := o.Default.(int); ok {
					d = int64(i)
				} else {
					d = o.Default.(int64)
				}
			}
			if fromViper {
				d = v.GetInt64(o.Flag)
			}
			flags.Int64Var(destP, o.Flag, d, o.Desc)
		case *float64:
			var d float64
			if o.Default != nil {
				d = o.Default.(float64)
			}
			if fromViper {
				d = v.GetFloat64(o.Flag)
			}
			flags.Float64Var(destP, o.Flag, d, o.Desc)
		case *bool:
			var d bool
			if o.Default != nil {
				d = o.Default.(bool)
			}
			if fromViper {
				d = v.GetBool(o.Flag)
			}
			flags.BoolVar(destP, o.Flag, d, o.Desc)
		case *time.Duration:
			var d time.Duration
			if o.Default != nil {
				d = o.Default.(time.Duration)
			}
			if fromViper {
				d = v.GetDuration(o.Flag)
			}
			flags.DurationVar(destP, o.Flag, d, o.Desc)
		case *[]string:
			var d []string
			if o.Default != nil {
				d = o.Default.([]string)
			}
			if fromViper {
				d = v.GetStringSlice(o.Flag)
			}
			flags.StringSliceVar(destP, o.Flag, d, o.Desc)
		case *zapcore.Level:
			var d zapcore.Level
			if o.Default != nil {
				d = o.Default.(zapcore.Level)
			}
			if fromViper {
				if err := d.Set(v.GetString(o.Flag)); err != nil {
					return fmt.Errorf("invalid value for %q: %w", o.Flag, err)
				}
			}
			LevelVar(flags, destP, o.Flag, d, o.Desc)
		case pflag.Value:
			if o.Default != nil {
				if err := destP.Set(fmt.Sprint(o.Default)); err != nil {
					return fmt.Errorf("invalid default for %q: %w", o.Flag, err)
				}
			}
			if fromViper {
				if err := destP.Set(v.GetString(o.Flag)); err != nil {
					return fmt.Errorf("invalid value for %q: %w", o.Flag, err)
				}
			}
			flags.Var(destP, o.Flag, o.Desc)
		default:
			// if you get a panic here, sorry about that!
			// anyway, go ahead and make a PR and add another type.
			panic(fmt.Errorf("unknown destination type %t", o.DestP))
		}

		if err := v.BindPFlag(o.Flag, flags.Lookup(o.Flag)); err != nil {
			return err
		}
		if o.Required && !fromViper {
			if err := cmd.MarkFlagRequired(o.Flag); err != nil {
				return err
			}
		}
	}
	return nil
}
