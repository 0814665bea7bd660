package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/dl-alexandre/gdrv-gateway/internal/config"
	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration management",
	Long:  "Commands for managing gdrv-gateway configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show effective configuration",
	Long:  "Display the configuration after defaults, file and environment are applied",
	Args:  cobra.NoArgs,
	RunE:  runConfigShow,
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long:  "Set a value in the config file. Keys use the file's names, e.g. rootFolder or sizeLimitKb. List values are comma separated.",
	Args:  cobra.ExactArgs(2),
	RunE:  runConfigSet,
}

var configResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Reset configuration to defaults",
	Args:  cobra.NoArgs,
	RunE:  runConfigReset,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the config file path",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := configFilePath()
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), path)
		return err
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configResetCmd)
	configCmd.AddCommand(configPathCmd)
	rootCmd.AddCommand(configCmd)
}

func configFilePath() (string, error) {
	if globalFlags.Config != "" {
		return globalFlags.Config, nil
	}
	return config.GetConfigPath()
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	return newOutput(cmd).WriteJSON(cfg)
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	out := newOutput(cmd)
	key, value := args[0], args[1]

	path, err := configFilePath()
	if err != nil {
		return err
	}
	fileCfg, err := config.LoadFile(path)
	if err != nil {
		return err
	}

	if err := setConfigValue(fileCfg, key, value); err != nil {
		return err
	}
	if err := fileCfg.Save(path); err != nil {
		return err
	}

	out.Log("Configuration updated: %s = %s", key, value)
	return nil
}

func setConfigValue(c *config.Config, key, value string) error {
	atoi := func() (int, error) {
		n, err := strconv.Atoi(value)
		if err != nil {
			return 0, fmt.Errorf("%s must be an integer", key)
		}
		return n, nil
	}

	var err error
	switch strings.ToLower(key) {
	case "listenaddr":
		c.ListenAddr = value
	case "rootfolder":
		c.RootFolder = value
	case "sizelimitkb":
		c.SizeLimitKB, err = strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("sizeLimitKb must be a number")
		}
	case "serviceaccountfile":
		c.ServiceAccountFile = value
	case "keyringprofile":
		c.KeyringProfile = value
	case "scopes":
		c.Scopes = splitValues(value)
	case "defaultpagesize":
		c.DefaultPageSize, err = atoi()
	case "maxlistitems":
		c.MaxListItems, err = atoi()
	case "chunksize":
		c.ChunkSize, err = strconv.ParseInt(value, 10, 64)
		if err != nil {
			return fmt.Errorf("chunkSize must be an integer")
		}
	case "requesttimeout":
		c.RequestTimeout, err = atoi()
	case "chunktimeout":
		c.ChunkTimeout, err = atoi()
	case "tunnelallowedhosts":
		c.TunnelAllowedHosts = splitValues(value)
	case "corsorigins":
		c.CORSOrigins = splitValues(value)
	case "loglevel":
		c.LogLevel = value
	case "logformat":
		c.LogFormat = value
	case "logfile":
		c.LogFile = value
	case "logcolor":
		c.LogColor = parseBool(value)
	default:
		return fmt.Errorf("unknown configuration key: %s", key)
	}
	if err != nil {
		return err
	}
	return c.Validate()
}

func runConfigReset(cmd *cobra.Command, args []string) error {
	out := newOutput(cmd)

	path, err := configFilePath()
	if err != nil {
		return err
	}
	if err := config.DefaultConfig().Save(path); err != nil {
		return fmt.Errorf("failed to reset configuration: %w", err)
	}

	out.Log("Configuration reset to defaults")
	return nil
}

func splitValues(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// parseBool parses a boolean value from a string
func parseBool(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return s == "true" || s == "1" || s == "yes" || s == "on"
}
