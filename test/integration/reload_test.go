// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

//go:build integration

package integration

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/gatehouse/gatehouse/internal/policy"
	"github.com/gatehouse/gatehouse/internal/policy/loader"
	"github.com/gatehouse/gatehouse/internal/policy/types"
)

const lockedSchema = `model Post {
  id String @id
  ownerId String

  @@allow("read", auth().id == this.ownerId)
}`

const openSchema = `model Post {
  id String @id
  ownerId String

  @@allow("read", true)
}`

var _ = Describe("schema hot reload", func() {
	var (
		ctx        context.Context
		cancel     context.CancelFunc
		schemaPath string
		ld         *loader.Loader
		engine     *policy.Engine
	)

	readPost := func(actor *types.Actor) (types.Decision, error) {
		req, err := types.NewAccessRequest("Post", types.OpRead, actor,
			types.Record{"id": "p1", "ownerId": "u1"})
		Expect(err).NotTo(HaveOccurred())
		return engine.Decide(ctx, req)
	}

	BeforeEach(func() {
		ctx, cancel = context.WithCancel(context.Background())

		dir, err := os.MkdirTemp("", "gatehouse-integration")
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(func() { _ = os.RemoveAll(dir) })

		schemaPath = filepath.Join(dir, "schema.gh")
		Expect(os.WriteFile(schemaPath, []byte(lockedSchema), 0o600)).To(Succeed())

		src := loader.NewFileSource(schemaPath)
		ld = loader.New(src, policy.NewCompiler())
		Expect(ld.Reload(ctx)).To(Succeed())
		Expect(ld.Start(ctx, src)).To(Succeed())

		engine = policy.NewEngine(ld)
	})

	AfterEach(func() {
		cancel()
		ld.Wait()
	})

	It("serves decisions from the initial snapshot", func() {
		decision, err := readPost(nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(decision.IsAllowed()).To(BeFalse())

		decision, err = readPost(&types.Actor{ID: "u1"})
		Expect(err).NotTo(HaveOccurred())
		Expect(decision.IsAllowed()).To(BeTrue())
	})

	It("picks up a rewritten schema without restart", func() {
		decision, err := readPost(nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(decision.IsAllowed()).To(BeFalse())

		Expect(os.WriteFile(schemaPath, []byte(openSchema), 0o600)).To(Succeed())

		Eventually(func() bool {
			decision, err := readPost(nil)
			if err != nil {
				return false
			}
			return decision.IsAllowed()
		}, 5*time.Second, 50*time.Millisecond).Should(BeTrue())
	})

	It("keeps the previous snapshot when the new source is invalid", func() {
		Expect(os.WriteFile(schemaPath, []byte("model {"), 0o600)).To(Succeed())

		// The watcher retries the broken source and keeps serving the
		// last good snapshot.
		Consistently(func() bool {
			decision, err := readPost(&types.Actor{ID: "u1"})
			if err != nil {
				return false
			}
			return decision.IsAllowed()
		}, time.Second, 100*time.Millisecond).Should(BeTrue())
	})

	It("serves concurrent decisions during reloads", func() {
		var wg sync.WaitGroup
		stop := make(chan struct{})

		for range 8 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				defer GinkgoRecover()
				for {
					select {
					case <-stop:
						return
					default:
					}
					_, err := readPost(&types.Actor{ID: "u1"})
					Expect(err).NotTo(HaveOccurred())
				}
			}()
		}

		for i := range 10 {
			content := lockedSchema
			if i%2 == 0 {
				content = openSchema
			}
			Expect(os.WriteFile(schemaPath, []byte(content), 0o600)).To(Succeed())
			time.Sleep(20 * time.Millisecond)
		}

		close(stop)
		wg.Wait()
	})
})
