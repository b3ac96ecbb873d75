// Package main provides a Dagger module for testing, building and running tripnest.
//
// The image ships the worker, admin and db binaries behind the entrypoint,
// which picks one from RUN_TYPE. Local runs bind Postgres and Redis as services
// under the aliases "postgres" and "redis", so the mounted config directory
// must point its hosts at those names.
package main

import (
	"context"
	"dagger/tripnest/internal/dagger"
	"fmt"
	"strings"
)

const (
	goImage      = "golang:1.24.2-alpine"
	runtimeImage = "gcr.io/distroless/static-debian12:latest"
	configPath   = "/etc/tripnest/config"
)

// binaries are built from ./cmd/<name> into /app/bin.
var binaries = []string{"worker", "admin", "db", "entrypoint"}

type Tripnest struct{}

// goEnv returns a Go toolchain container with module and build caches mounted.
func goEnv(src *dagger.Directory) *dagger.Container {
	return dag.Container().
		From(goImage).
		WithMountedCache("/go/pkg/mod", dag.CacheVolume("tripnest-go-mod")).
		WithMountedCache("/root/.cache/go-build", dag.CacheVolume("tripnest-go-build")).
		WithDirectory("/src", src, dagger.ContainerWithDirectoryOpts{Exclude: []string{"_examples", "dagger"}}).
		WithWorkdir("/src").
		WithEnvVariable("CGO_ENABLED", "0")
}

// Test runs the unit tests. Redis is served in-process by miniredis, so no
// services are needed.
func (m *Tripnest) Test(
	ctx context.Context,
	// Source code directory
	// +required
	src *dagger.Directory,
) (string, error) {
	return goEnv(src).
		WithExec([]string{"go", "vet", "./..."}).
		WithExec([]string{"go", "test", "-race", "./..."}).
		Stdout(ctx)
}

// BuildContainer creates the runtime image for one platform.
func (m *Tripnest) BuildContainer(
	ctx context.Context,
	// Source code directory
	// +required
	src *dagger.Directory,
	// Platform to build for
	// +optional
	// +default="linux/amd64"
	platform *dagger.Platform,
) (*dagger.Container, error) {
	buildPlatform := dagger.Platform("linux/amd64")
	if platform != nil {
		buildPlatform = *platform
	}

	arch, err := dag.Containerd().ArchitectureOf(ctx, buildPlatform)
	if err != nil {
		return nil, fmt.Errorf("failed to get architecture: %w", err)
	}

	build := goEnv(src).
		WithEnvVariable("GOOS", "linux").
		WithEnvVariable("GOARCH", arch).
		WithExec([]string{"apk", "add", "--no-cache", "upx", "ca-certificates"})

	for _, binary := range binaries {
		build = build.
			WithExec([]string{"go", "build", "-trimpath", "-ldflags=-s -w", "-o", "/out/" + binary, "./cmd/" + binary}).
			WithExec([]string{"upx", "--best", "--lzma", "/out/" + binary})
	}

	return dag.Container(dagger.ContainerOpts{Platform: buildPlatform}).
		From(runtimeImage).
		WithDirectory("/app/bin", build.Directory("/out")).
		WithFile("/etc/ssl/certs/ca-certificates.crt", build.File("/etc/ssl/certs/ca-certificates.crt")).
		WithWorkdir("/app").
		WithEntrypoint([]string{"/app/bin/entrypoint"}).
		WithEnvVariable("RUN_TYPE", "worker").
		WithEnvVariable("WORKER_TYPE", "reconcile"), nil
}

// Publish tests the source once and publishes a multi-platform image.
func (m *Tripnest) Publish(
	ctx context.Context,
	// Source code directory
	// +required
	src *dagger.Directory,
	// Image reference (e.g. "registry.example/tripnest:1.0.0")
	// +required
	imageName string,
	// Platforms to build for (comma-separated, e.g. "linux/amd64,linux/arm64")
	// +optional
	// +default="linux/amd64"
	platforms string,
) (string, error) {
	if _, err := m.Test(ctx, src); err != nil {
		return "", fmt.Errorf("tests failed: %w", err)
	}

	if platforms == "" {
		platforms = "linux/amd64"
	}

	var variants []*dagger.Container
	for _, p := range strings.Split(platforms, ",") {
		platform := dagger.Platform(strings.TrimSpace(p))
		container, err := m.BuildContainer(ctx, src, &platform)
		if err != nil {
			return "", fmt.Errorf("failed to build container for %s: %w", platform, err)
		}
		variants = append(variants, container)
	}

	ref, err := dag.Container().Publish(ctx, imageName, dagger.ContainerPublishOpts{
		PlatformVariants: variants,
	})
	if err != nil {
		return "", fmt.Errorf("failed to publish image: %w", err)
	}

	return ref, nil
}

// services returns throwaway Postgres and Redis services for local runs.
func (m *Tripnest) services() []*dagger.Service {
	postgres := dag.Container().
		From("postgres:17-alpine").
		WithEnvVariable("POSTGRES_USER", "postgres").
		WithEnvVariable("POSTGRES_PASSWORD", "postgres").
		WithEnvVariable("POSTGRES_DB", "tripnest").
		WithExposedPort(5432).
		AsService()

	redis := dag.Container().
		From("redis:7-alpine").
		WithExposedPort(6379).
		AsService()

	return []*dagger.Service{postgres, redis}
}

// runtime returns the image with config mounted and both services bound.
func (m *Tripnest) runtime(
	ctx context.Context, src *dagger.Directory, configDir *dagger.Directory,
) (*dagger.Container, error) {
	image, err := m.BuildContainer(ctx, src, nil)
	if err != nil {
		return nil, err
	}

	services := m.services()
	return image.
		WithDirectory(configPath, configDir).
		WithServiceBinding("postgres", services[0]).
		WithServiceBinding("redis", services[1]), nil
}

// Migrate applies the schema through the db binary and prints its status.
func (m *Tripnest) Migrate(
	ctx context.Context,
	// Source code directory
	// +required
	src *dagger.Directory,
	// Config directory with common.toml and worker.toml
	// +required
	configDir *dagger.Directory,
) (string, error) {
	ctr, err := m.runtime(ctx, src, configDir)
	if err != nil {
		return "", err
	}

	return ctr.
		WithExec([]string{"/app/bin/db", "migrate"}).
		WithExec([]string{"/app/bin/db", "status"}).
		Stdout(ctx)
}

// Admin migrates the schema and runs one admin command, e.g. "counters pull"
// or "cache stats feed".
func (m *Tripnest) Admin(
	ctx context.Context,
	// Source code directory
	// +required
	src *dagger.Directory,
	// Config directory with common.toml and worker.toml
	// +required
	configDir *dagger.Directory,
	// Admin command and arguments
	// +required
	args string,
) (string, error) {
	ctr, err := m.runtime(ctx, src, configDir)
	if err != nil {
		return "", err
	}

	return ctr.
		WithExec([]string{"/app/bin/db", "migrate"}).
		WithExec(append([]string{"/app/bin/admin"}, strings.Fields(args)...)).
		Stdout(ctx)
}

// Worker runs the reconcile worker through the entrypoint with auto-migration.
func (m *Tripnest) Worker(
	ctx context.Context,
	// Source code directory
	// +required
	src *dagger.Directory,
	// Config directory with common.toml and worker.toml
	// +required
	configDir *dagger.Directory,
	// Worker ID reported in heartbeats
	// +optional
	// +default="dagger"
	workerID string,
) (*dagger.Container, error) {
	ctr, err := m.runtime(ctx, src, configDir)
	if err != nil {
		return nil, err
	}

	return ctr.
		WithEnvVariable("AUTO_MIGRATE", "true").
		WithEnvVariable("WORKER_ID", workerID).
		WithExec([]string{}, dagger.ContainerWithExecOpts{UseEntrypoint: true}), nil
}
