package config_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/okian/lighttrace/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestWatch(t *testing.T) {
	convey.Convey("Given a watched config file", t, func() {
		clearConfigEnvVars()
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		path := filepath.Join(t.TempDir(), "lighttrace.yaml")
		convey.So(os.WriteFile(path, []byte("log_level: info\n"), 0o600), convey.ShouldBeNil)

		type result struct {
			cfg *config.Config
			err error
		}
		changes := make(chan result, 8)
		err := config.Watch(ctx, path, func(cfg *config.Config, err error) {
			changes <- result{cfg, err}
		})
		convey.So(err, convey.ShouldBeNil)

		convey.Convey("When the file is rewritten", func() {
			convey.So(os.WriteFile(path, []byte("log_level: debug\n"), 0o600), convey.ShouldBeNil)

			convey.Convey("Then the reloaded config is delivered", func() {
				var got result
				deadline := time.After(5 * time.Second)
			wait:
				for {
					select {
					case got = <-changes:
						if got.err == nil && got.cfg.LogLevel == "debug" {
							break wait
						}
					case <-deadline:
						break wait
					}
				}
				convey.So(got.err, convey.ShouldBeNil)
				convey.So(got.cfg, convey.ShouldNotBeNil)
				convey.So(got.cfg.LogLevel, convey.ShouldEqual, "debug")
			})
		})
	})

	convey.Convey("Given a file in a missing directory", t, func() {
		err := config.Watch(context.Background(), "/non/existent/dir/lighttrace.yaml", func(*config.Config, error) {})

		convey.Convey("Then Watch fails up front", func() {
			convey.So(err, convey.ShouldNotBeNil)
		})
	})
}
