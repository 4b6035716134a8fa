package asset

import (
	"context"
	"fmt"

	"github.com/bitrise-io/go-assetupload/asset/network"
	"github.com/bitrise-io/go-utils/v2/log"
)

type fakeEnvRepo struct {
	envVars map[string]string
}

func (repo fakeEnvRepo) Get(key string) string {
	return repo.envVars[key]
}

func (repo fakeEnvRepo) Set(key, value string) error {
	repo.envVars[key] = value
	return nil
}

func (repo fakeEnvRepo) Unset(key string) error {
	repo.envVars[key] = ""
	return nil
}

func (repo fakeEnvRepo) List() []string {
	envs := []string{}
	for k, v := range repo.envVars {
		envs = append(envs, fmt.Sprintf("%s=%s", k, v))
	}
	return envs
}

type fakeNetworkUploader struct {
	params network.UploadParams
	calls  int
	url    string
	err    error
}

func (f *fakeNetworkUploader) Upload(ctx context.Context, params network.UploadParams, logger log.Logger) (string, error) {
	f.params = params
	f.calls++
	return f.url, f.err
}

type fakeNetworkDownloader struct {
	params network.DownloadParams
	calls  int
	err    error
}

func (f *fakeNetworkDownloader) Download(ctx context.Context, params network.DownloadParams, logger log.Logger) error {
	f.params = params
	f.calls++
	return f.err
}
