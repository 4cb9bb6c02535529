package main

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"github.com/Kat4X/video-transcriber/internal/client"
	"github.com/Kat4X/video-transcriber/internal/config"
)

type commandContext struct {
	apiFlag    *string
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(apiFlag, configFlag *string) *commandContext {
	return &commandContext{
		apiFlag:    apiFlag,
		configFlag: configFlag,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		cfg, _, _, err := config.Load(c.configPath())
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) configValue() *config.Config {
	cfg, _ := c.ensureConfig()
	return cfg
}

func (c *commandContext) configPath() string {
	if c.configFlag == nil {
		return ""
	}
	return strings.TrimSpace(*c.configFlag)
}

// apiClient builds a client for the --api address, falling back to the
// configured bind address.
func (c *commandContext) apiClient() (*client.Client, error) {
	if c.apiFlag != nil {
		if address := strings.TrimSpace(*c.apiFlag); address != "" {
			return client.New(address)
		}
	}
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	return client.FromConfig(cfg)
}

func (c *commandContext) withClient(fn func(*client.Client) error) error {
	api, err := c.apiClient()
	if err != nil {
		return err
	}
	return wrapDialError(fn(api), api.BaseURL())
}

func wrapDialError(err error, address string) error {
	if errors.Is(err, client.ErrUnavailable) {
		return fmt.Errorf("connect to daemon: nothing is listening at %s; start the daemon with `transcriber start`", address)
	}
	return err
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
