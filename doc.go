// Package rescache provides a hash-keyed resource cache whose entries are
// constructed asynchronously on a work-stealing job scheduler.
//
// A resource is identified by the fingerprint of its logical path
// (model.Fingerprint). Requesting it attaches to the shared cache entry or
// creates one and schedules its construction: the raw content is read through
// a FileLoader, handed to the Kind's Resource in OnConstruct, dependencies
// declared there are requested in turn, and OnDependenciesFulfilled runs once
// all of them are Ready.
//
// # Quick Start
//
//	store := blobstore.NewLocalStore("./assets")
//	ldr := loader.New(store, loader.Config{})
//	_ = ldr.Refresh(ctx)
//	mgr, _ := rescache.New(ldr, rescache.WithWorkers(8))
//	defer mgr.Close()
//
//	inst, _ := mgr.RequestPath(ctx, "textures/stone.png", textureKind)
//	defer inst.Release()
//	if err := inst.Wait(ctx); err != nil {
//	    return err
//	}
//	tex, _ := rescache.As[*Texture](inst)
//
// # Lifetime
//
// Every Instance and Reference holds one reference to its entry. When the
// last one is released the entry is deleted by a background job unless it
// was requested WithPermanent. Entries are shared: requesting the same hash
// twice yields two instances of one entry.
//
// # Hot Reload
//
// NotifyChanged, or a ChangeSource passed to Watch (see package watcher),
// reconstructs an entry in place. The entry stays Ready and keeps serving the
// previous payload until the new one is Ready; then the previous payload is
// deleted. Notifications that arrive during a construction are coalesced into
// a single re-run.
//
// # Failures
//
// A construction that fails in any stage leaves the entry Failed and
// Instance.Wait returns a *ConstructError matching ErrConstructionFailed. A
// failed reload keeps the previous payload.
package rescache
