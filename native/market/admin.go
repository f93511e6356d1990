package market

import "nftmarket/core/events"

// requireRole gates the global admin surface on RoleMarketAdmin membership.
func (e *Engine) requireRole(caller [20]byte) error {
	if !e.state.HasRole(RoleMarketAdmin, caller) {
		return ErrUnauthorized
	}
	return nil
}

// requireCollectionAuthority admits the collection's registered admin or any
// marketplace admin. Per-collection knobs are delegated to collection owners
// without opening the global surface.
func (e *Engine) requireCollectionAuthority(caller [20]byte, collection [20]byte) error {
	if e.state.HasRole(RoleMarketAdmin, caller) {
		return nil
	}
	if e.assets != nil {
		admin, ok, err := e.assets.CollectionAdmin(collection)
		if err == nil && ok && !isZeroAddress(admin) && admin == caller {
			return nil
		}
	}
	return ErrUnauthorized
}

// SetFee updates the global protocol fee rates. Both rates are capped at
// MaxProtocolFeeBps.
func (e *Engine) SetFee(caller [20]byte, feeBps, feeWithOverrideBps uint32) error {
	return e.runMutation(func(q *events.Queue) error {
		if err := e.requireRole(caller); err != nil {
			return err
		}
		if feeBps > MaxProtocolFeeBps || feeWithOverrideBps > MaxProtocolFeeBps {
			return ErrFeeAboveCap
		}
		params, err := e.params()
		if err != nil {
			return err
		}
		params.FeeBps = feeBps
		params.FeeWithOverrideBps = feeWithOverrideBps
		if err := e.state.ParamsPut(params); err != nil {
			return err
		}
		q.Emit(marketEvent{evt: NewFeeUpdatedEvent(feeBps, feeWithOverrideBps)})
		return nil
	})
}

// SetFeeRecipient updates the protocol fee sink. The zero address is
// rejected so fees can never be burned by misconfiguration.
func (e *Engine) SetFeeRecipient(caller [20]byte, recipient [20]byte) error {
	return e.runMutation(func(q *events.Queue) error {
		if err := e.requireRole(caller); err != nil {
			return err
		}
		if isZeroAddress(recipient) {
			return ErrInvalidRecipient
		}
		params, err := e.params()
		if err != nil {
			return err
		}
		params.FeeRecipient = recipient
		if err := e.state.ParamsPut(params); err != nil {
			return err
		}
		q.Emit(marketEvent{evt: NewFeeRecipientUpdatedEvent(recipient)})
		return nil
	})
}

// SetCollectionFee sets or clears the collection's fee override. A zero
// recipient clears the override; a non-zero one activates it, capped at
// MaxCollectionFeeBps.
func (e *Engine) SetCollectionFee(caller [20]byte, collection [20]byte, feeBps uint32, recipient [20]byte) error {
	return e.runMutation(func(q *events.Queue) error {
		if err := e.requireCollectionAuthority(caller, collection); err != nil {
			return err
		}
		if isZeroAddress(recipient) {
			if err := e.state.CollectionFeeDelete(collection); err != nil {
				return err
			}
			q.Emit(marketEvent{evt: NewCollectionFeeUpdatedEvent(collection, 0, zeroAddress)})
			return nil
		}
		if feeBps > MaxCollectionFeeBps {
			return ErrFeeAboveCap
		}
		fee := &CollectionFee{FeeBps: feeBps, Recipient: recipient}
		if err := e.state.CollectionFeePut(collection, fee); err != nil {
			return err
		}
		q.Emit(marketEvent{evt: NewCollectionFeeUpdatedEvent(collection, feeBps, recipient)})
		return nil
	})
}

// SetCollectionPayment sets or clears the collection's settlement asset
// override. A zero asset clears it, reverting the collection to the global
// default.
func (e *Engine) SetCollectionPayment(caller [20]byte, collection [20]byte, asset [20]byte) error {
	return e.runMutation(func(q *events.Queue) error {
		if err := e.requireCollectionAuthority(caller, collection); err != nil {
			return err
		}
		if isZeroAddress(asset) {
			if err := e.state.CollectionPaymentDelete(collection); err != nil {
				return err
			}
		} else if err := e.state.CollectionPaymentPut(collection, asset); err != nil {
			return err
		}
		q.Emit(marketEvent{evt: NewCollectionPaymentUpdatedEvent(collection, asset)})
		return nil
	})
}

// SetPriceTracker updates the sale-price tracker reference. The zero address
// disables recording.
func (e *Engine) SetPriceTracker(caller [20]byte, tracker [20]byte) error {
	return e.runMutation(func(q *events.Queue) error {
		if err := e.requireRole(caller); err != nil {
			return err
		}
		params, err := e.params()
		if err != nil {
			return err
		}
		params.PriceTracker = tracker
		if err := e.state.ParamsPut(params); err != nil {
			return err
		}
		q.Emit(marketEvent{evt: NewPriceTrackerUpdatedEvent(tracker)})
		return nil
	})
}

// SetWrappedNative configures the wrapped native asset. Write-once: any
// attempt after the first set fails, including rewriting the same value.
func (e *Engine) SetWrappedNative(caller [20]byte, asset [20]byte) error {
	return e.runMutation(func(q *events.Queue) error {
		if err := e.requireRole(caller); err != nil {
			return err
		}
		if isZeroAddress(asset) {
			return ErrInvalidRecipient
		}
		params, err := e.params()
		if err != nil {
			return err
		}
		if !isZeroAddress(params.WrappedNative) {
			return ErrAlreadySet
		}
		params.WrappedNative = asset
		if err := e.state.ParamsPut(params); err != nil {
			return err
		}
		q.Emit(marketEvent{evt: NewWrappedNativeSetEvent(asset)})
		return nil
	})
}

// SetBiddingActive toggles the bid-side switch. Idempotent writes still
// emit.
func (e *Engine) SetBiddingActive(caller [20]byte, active bool) error {
	return e.runMutation(func(q *events.Queue) error {
		if err := e.requireRole(caller); err != nil {
			return err
		}
		params, err := e.params()
		if err != nil {
			return err
		}
		params.BiddingActive = active
		if err := e.state.ParamsPut(params); err != nil {
			return err
		}
		q.Emit(marketEvent{evt: NewBiddingToggledEvent(active)})
		return nil
	})
}

// Pause halts trade-opening operations. Idempotent.
func (e *Engine) Pause(caller [20]byte) error {
	return e.setPaused(caller, true)
}

// Unpause resumes trade-opening operations. Idempotent.
func (e *Engine) Unpause(caller [20]byte) error {
	return e.setPaused(caller, false)
}

func (e *Engine) setPaused(caller [20]byte, paused bool) error {
	return e.runMutation(func(q *events.Queue) error {
		if err := e.requireRole(caller); err != nil {
			return err
		}
		params, err := e.params()
		if err != nil {
			return err
		}
		params.Paused = paused
		if err := e.state.ParamsPut(params); err != nil {
			return err
		}
		if paused {
			q.Emit(marketEvent{evt: NewPausedEvent()})
		} else {
			q.Emit(marketEvent{evt: NewUnpausedEvent()})
		}
		return nil
	})
}

// GrantRole adds an address to the admin role. The role administers itself.
func (e *Engine) GrantRole(caller [20]byte, addr [20]byte) error {
	return e.runMutation(func(q *events.Queue) error {
		if err := e.requireRole(caller); err != nil {
			return err
		}
		if isZeroAddress(addr) {
			return ErrInvalidRecipient
		}
		if err := e.state.GrantRole(RoleMarketAdmin, addr); err != nil {
			return err
		}
		q.Emit(marketEvent{evt: NewRoleGrantedEvent(RoleMarketAdmin, addr)})
		return nil
	})
}

// RevokeRole removes an address from the admin role. Revoking the last
// holder is allowed; recovery then requires reseeding state out of band.
func (e *Engine) RevokeRole(caller [20]byte, addr [20]byte) error {
	return e.runMutation(func(q *events.Queue) error {
		if err := e.requireRole(caller); err != nil {
			return err
		}
		if err := e.state.RevokeRole(RoleMarketAdmin, addr); err != nil {
			return err
		}
		q.Emit(marketEvent{evt: NewRoleRevokedEvent(RoleMarketAdmin, addr)})
		return nil
	})
}
