// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

//go:build integration

package integration

import (
	"context"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/gatehouse/gatehouse/internal/policy"
	"github.com/gatehouse/gatehouse/internal/policy/loader"
	"github.com/gatehouse/gatehouse/internal/policy/types"
)

const accountSchema = `model User {
  id String @id

  @@allow("create,read", true)
  @@allow("update,delete", auth() == this)
}

model Post {
  id String @id
  authorId String
  published Boolean

  @@allow("all", auth() == author)
  @@allow("read", auth() != null && published)
  @@deny("delete", !published)
}`

var _ = Describe("decision engine end to end", func() {
	var engine *policy.Engine

	decide := func(entity string, op types.Operation, actor *types.Actor, record types.Record) types.Decision {
		req, err := types.NewAccessRequest(entity, op, actor, record)
		Expect(err).NotTo(HaveOccurred())
		decision, err := engine.Decide(context.Background(), req)
		Expect(err).NotTo(HaveOccurred())
		return decision
	}

	BeforeEach(func() {
		ld := loader.New(loader.StaticSource(accountSchema), policy.NewCompiler())
		Expect(ld.Reload(context.Background())).To(Succeed())
		engine = policy.NewEngine(ld)
	})

	It("allows anonymous reads granted unconditionally", func() {
		decision := decide("User", types.OpRead, nil, types.Record{"id": "1"})
		Expect(decision.IsAllowed()).To(BeTrue())
	})

	It("default-denies when no allow condition is satisfied", func() {
		decision := decide("User", types.OpDelete,
			&types.Actor{ID: "2"}, types.Record{"id": "1"})
		Expect(decision.IsAllowed()).To(BeFalse())
		Expect(decision.Effect).To(Equal(types.EffectDefaultDeny))
	})

	It("allows a non-author to read a published post", func() {
		decision := decide("Post", types.OpRead,
			&types.Actor{ID: "5"},
			types.Record{"id": "p1", "published": true, "authorId": "9"})
		Expect(decision.IsAllowed()).To(BeTrue())
	})

	It("deny overrides the author's allow-all rule", func() {
		decision := decide("Post", types.OpDelete,
			&types.Actor{ID: "9"},
			types.Record{"id": "p1", "published": false, "authorId": "9"})
		Expect(decision.IsAllowed()).To(BeFalse())
		Expect(decision.Effect).To(Equal(types.EffectDeny))
	})
})
