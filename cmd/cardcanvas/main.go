/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"cardcanvas/internal/config"
	"cardcanvas/internal/crash"
	applog "cardcanvas/internal/log"
	"cardcanvas/internal/telemetry"
	"cardcanvas/internal/version"
)

func usage() {
	fmt.Println("Card Canvas")
	fmt.Printf("Version: %s\n", version.String())
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  cardcanvas version|-v|--version           Show version")
	fmt.Println("  cardcanvas show <face>                    Print the saved layout of a face (front|back)")
	fmt.Println("  cardcanvas add-text <face> <text>         Add a text element to a face")
	fmt.Println("  cardcanvas add-image <face> <uri>         Add an image element to a face")
	fmt.Println("  cardcanvas export <face> <out.png> [web|print]")
	fmt.Println("                                            Render a face to PNG")
	fmt.Println("  cardcanvas pdf <out.pdf>                  Write a print sheet with front and back")
	fmt.Println("  cardcanvas reset <face>                   Clear a face")
	fmt.Println("  cardcanvas history <face> [n]             List stored revisions of a face")
	fmt.Println("  cardcanvas serve [addr]                   Serve previews over HTTP")
	fmt.Println("  cardcanvas ping                           Check the backend service")
	fmt.Println("  cardcanvas ui                             Launch desktop UI (build with -tags fyne for full UI)")
}

func main() {
	cfg, token, err := config.Load()
	if err != nil {
		// keep going on defaults; a broken config file must not lock the user out
		fmt.Fprintln(os.Stderr, "config:", err)
		cfg = config.Defaults()
	}
	applog.Init(logOptions(cfg))
	telemetry.NewDefault(telemetryConfig(cfg))
	l := applog.WithComponent("cli")

	args := os.Args
	l.Debug("start", slog.Int("args", len(args)))
	if len(args) < 2 {
		usage()
		return
	}
	switch args[1] {
	case "version", "--version", "-v":
		fmt.Println("Card Canvas")
		fmt.Println(version.String())
		return
	case "help", "-h", "--help":
		usage()
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, token)
	if err != nil {
		l.Error("startup failed", slog.Any("err", err))
		fmt.Println("Error:", err)
		os.Exit(1)
	}
	defer a.Close()
	defer crash.Recover(crash.Target{Dir: a.dataDir, Session: telemetry.Default().Session()})

	if err := a.dispatch(ctx, args[1], args[2:]); err != nil {
		var ue usageError
		if errors.As(err, &ue) {
			fmt.Println(ue.Error())
			usage()
			os.Exit(2)
		}
		l.Error("command failed", slog.String("cmd", args[1]), slog.Any("err", err))
		fmt.Println("Error:", err)
		os.Exit(1)
	}
}

func logOptions(cfg config.AppConfig) applog.Options {
	return applog.Options{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		AddSource: cfg.Logging.Source,
		File:      cfg.Logging.File,
	}
}

func telemetryConfig(cfg config.AppConfig) telemetry.Config {
	tc := telemetry.FromEnv()
	tc.OptIn = cfg.General.TelemetryOptIn
	return tc
}
