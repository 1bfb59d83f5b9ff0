/*
Copyright 2025.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/chazu/topoc/pkg/graph"
)

const (
	airflowBase = "embedded://airflow/base.cue"
	airflowDev  = "embedded://airflow/dev.cue"
	airflowProd = "embedded://airflow/prod.cue"
)

var _ = Describe("topoc", func() {
	var (
		dir        string
		configFile string
	)

	BeforeEach(func() {
		dir = GinkgoT().TempDir()
		configFile = filepath.Join(dir, "config.yaml")
		Expect(os.WriteFile(configFile, []byte("output:\n  color: never\n"), 0o644)).To(Succeed())
	})

	run := func(ctx context.Context, args ...string) (int, string, string) {
		var stdout, stderr bytes.Buffer
		args = append(args, "--config", configFile, "--cache-dir", filepath.Join(dir, "cache"))
		code := Run(ctx, args, &stdout, &stderr)
		return code, stdout.String(), stderr.String()
	}

	Context("examples", func() {
		It("should list the embedded documents", func() {
			code, stdout, _ := run(context.Background(), "examples")
			Expect(code).To(Equal(0))
			Expect(stdout).To(Equal(
				"embedded://airflow/base.cue\n" +
					"embedded://airflow/dev.cue\n" +
					"embedded://airflow/prod.cue\n" +
					"embedded://airflow/staging.yaml\n"))
		})
	})

	Context("render", func() {
		It("should write a manifest stream with overlays applied", func() {
			code, stdout, stderr := run(context.Background(), "render", "-f", airflowBase, "-o", airflowProd)
			Expect(code).To(Equal(0), stderr)
			Expect(stdout).To(ContainSubstring("kind: PersistentVolumeClaim"))
			Expect(stdout).To(ContainSubstring("kind: Job"))
			Expect(stdout).To(ContainSubstring("replicas: 5"))
			Expect(stdout).To(ContainSubstring("\n---\n"))
		})

		It("should write the graph document to a file", func() {
			out := filepath.Join(dir, "graph.json")
			code, stdout, stderr := run(context.Background(),
				"render", "-f", airflowBase, "-o", airflowDev, "--format", "json", "--out", out)
			Expect(code).To(Equal(0), stderr)
			Expect(stdout).To(BeEmpty())

			data, err := os.ReadFile(out)
			Expect(err).NotTo(HaveOccurred())
			var g graph.Graph
			Expect(json.Unmarshal(data, &g)).To(Succeed())
			Expect(g.Metadata.Namespace).To(Equal("airflow-dev"))
			Expect(g.Metadata.Overlays).To(Equal([]string{airflowDev}))
			Expect(g.Metadata.RenderHash).To(Equal(g.ComputeHash()))
		})

		It("should reject an unknown format", func() {
			code, _, stderr := run(context.Background(), "render", "-f", airflowBase, "--format", "toml")
			Expect(code).To(Equal(1))
			Expect(stderr).To(ContainSubstring("unsupported output format"))
		})

		It("should report an overlay naming an unknown service", func() {
			code, stdout, stderr := run(context.Background(),
				"render", "-f", airflowBase, "-o", `inline:name: "extra", services: cache: replicas: 2`)
			Expect(code).To(Equal(1))
			Expect(stdout).To(BeEmpty())
			Expect(stderr).To(ContainSubstring("cache"))
		})

		It("should report documents that do not match the schema", func() {
			code, _, stderr := run(context.Background(),
				"render", "-f", airflowBase, "-o", `inline:name: "extra", bogus: 1`)
			Expect(code).To(Equal(1))
			Expect(stderr).To(ContainSubstring("error:"))
			Expect(stderr).To(ContainSubstring("bogus"))
		})

		It("should require a base topology", func() {
			code, _, stderr := run(context.Background(), "render")
			Expect(code).To(Equal(1))
			Expect(stderr).To(ContainSubstring(`required flag(s) "file" not set`))
		})

		It("should write a metrics snapshot", func() {
			metricsFile := filepath.Join(dir, "topoc.prom")
			code, _, stderr := run(context.Background(),
				"render", "-f", airflowBase, "--metrics-file", metricsFile)
			Expect(code).To(Equal(0), stderr)

			data, err := os.ReadFile(metricsFile)
			Expect(err).NotTo(HaveOccurred())
			Expect(string(data)).To(ContainSubstring("topoc_compile_total"))
			Expect(string(data)).To(ContainSubstring("topoc_objects_rendered"))
		})
	})

	Context("validate", func() {
		It("should accept a consistent topology", func() {
			code, stdout, _ := run(context.Background(), "validate", "-f", airflowBase, "-o", airflowProd)
			Expect(code).To(Equal(0))
			Expect(stdout).To(ContainSubstring("valid"))
			Expect(stdout).NotTo(ContainSubstring("error"))
		})

		It("should fail with a report when errors are found", func() {
			code, stdout, stderr := run(context.Background(),
				"validate", "-f", airflowBase, "-o", `inline:name: "bad", services: worker: replicas: -1`)
			Expect(code).To(Equal(1))
			Expect(stdout).To(ContainSubstring("NegativeReplicas"))
			Expect(stdout).To(ContainSubstring("1 error"))
			Expect(stderr).NotTo(ContainSubstring("error:"))
		})
	})

	Context("merge", func() {
		It("should print the merged topology", func() {
			code, stdout, stderr := run(context.Background(), "merge", "-f", airflowBase, "-o", airflowDev)
			Expect(code).To(Equal(0), stderr)
			Expect(stdout).To(HavePrefix("name: airflow\n"))
			Expect(stdout).To(ContainSubstring("namespace: airflow-dev"))
			Expect(stdout).To(ContainSubstring(`parallelism: "4"`))
		})
	})

	Context("diff", func() {
		var previous string

		BeforeEach(func() {
			previous = filepath.Join(dir, "inventory.json")
			code, _, stderr := run(context.Background(), "render", "-f", airflowBase, "--inventory", previous)
			Expect(code).To(Equal(0), stderr)
		})

		It("should report no changes for the same inputs", func() {
			code, stdout, stderr := run(context.Background(), "diff", "-f", airflowBase, "--previous", previous)
			Expect(code).To(Equal(0), stderr)
			Expect(stdout).To(HavePrefix("0 added, 0 removed, 0 changed"))
		})

		It("should report objects changed by an overlay", func() {
			code, stdout, stderr := run(context.Background(),
				"diff", "-f", airflowBase, "-o", airflowProd, "--previous", previous)
			Expect(code).To(Equal(0), stderr)
			Expect(stdout).To(ContainSubstring("~ deployment/worker"))
			Expect(stdout).To(ContainSubstring("~ persistentvolumeclaim/postgres-data"))
		})

		It("should write the diff as JSON and save the new inventory", func() {
			code, stdout, stderr := run(context.Background(),
				"diff", "-f", airflowBase, "-o", airflowProd, "--previous", previous, "--format", "json", "--save")
			Expect(code).To(Equal(0), stderr)

			var d struct {
				Changed []string `json:"changed"`
			}
			Expect(json.Unmarshal([]byte(stdout), &d)).To(Succeed())
			Expect(d.Changed).To(ContainElement("deployment/worker"))

			code, stdout, _ = run(context.Background(),
				"diff", "-f", airflowBase, "-o", airflowProd, "--previous", previous)
			Expect(code).To(Equal(0))
			Expect(stdout).To(HavePrefix("0 added, 0 removed, 0 changed"))
		})

		It("should fail without a previous inventory", func() {
			code, _, stderr := run(context.Background(),
				"diff", "-f", airflowBase, "--previous", filepath.Join(dir, "missing.json"))
			Expect(code).To(Equal(1))
			Expect(stderr).To(ContainSubstring("missing.json"))
		})
	})

	Context("watch", func() {
		It("should render again when an input file changes", func() {
			base := filepath.Join(dir, "web.cue")
			out := filepath.Join(dir, "web.yaml")
			document := func(image string) []byte {
				return []byte(`name: "web"
services: [{name: "web", image: "` + image + `"}]
`)
			}
			Expect(os.WriteFile(base, document("nginx:1.26"), 0o644)).To(Succeed())

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			done := make(chan int, 1)
			go func() {
				defer GinkgoRecover()
				code, _, _ := run(ctx, "render", "-f", base, "--watch", "--out", out)
				done <- code
			}()

			readOut := func() string {
				data, _ := os.ReadFile(out)
				return string(data)
			}
			Eventually(readOut, 5*time.Second, 50*time.Millisecond).Should(ContainSubstring("image: nginx:1.26"))

			Expect(os.WriteFile(base, document("nginx:1.27"), 0o644)).To(Succeed())
			Eventually(readOut, 5*time.Second, 50*time.Millisecond).Should(ContainSubstring("image: nginx:1.27"))

			cancel()
			Eventually(done, 5*time.Second).Should(Receive(Equal(0)))
		})

		It("should require a file reference", func() {
			code, _, stderr := run(context.Background(), "render", "-f", airflowBase, "--watch")
			Expect(code).To(Equal(1))
			Expect(stderr).To(ContainSubstring("--watch needs at least one file reference"))
		})
	})
})
