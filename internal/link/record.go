package link

// Record is the link state of one chat identity: either a single game
// identity or a Java+Bedrock pair. The zero Record is not valid.
type Record struct {
	java    GameID
	bedrock GameID
	dual    bool
}

// Single builds a one-identity record.
func Single(id GameID) Record {
	if id.IsBedrock() {
		return Record{bedrock: id}
	}
	return Record{java: id}
}

// Dual builds a Java+Bedrock record. The arguments may come in either order;
// slots are assigned by kind. ok is false when both ids share a kind.
func Dual(a, b GameID) (r Record, ok bool) {
	if a.Kind() == b.Kind() {
		return Record{}, false
	}
	if a.IsBedrock() {
		a, b = b, a
	}
	return Record{java: a, bedrock: b, dual: true}, true
}

func (r Record) IsDual() bool { return r.dual }

// Primary returns the single id, or the Java slot of a dual record.
func (r Record) Primary() GameID {
	if r.dual {
		return r.java
	}
	if r.java.IsZero() {
		return r.bedrock
	}
	return r.java
}

// Java returns the Java-kind slot, if present.
func (r Record) Java() (GameID, bool) {
	if r.java.IsZero() {
		return NilGameID, false
	}
	return r.java, true
}

// Bedrock returns the Bedrock-kind slot, if present.
func (r Record) Bedrock() (GameID, bool) {
	if r.dual || r.java.IsZero() {
		return r.bedrock, !r.bedrock.IsZero()
	}
	return NilGameID, false
}

// IDs lists the identities in the record, Java first.
func (r Record) IDs() []GameID {
	if r.dual {
		return []GameID{r.java, r.bedrock}
	}
	return []GameID{r.Primary()}
}

func (r Record) Contains(id GameID) bool {
	if r.dual {
		return r.java == id || r.bedrock == id
	}
	return r.Primary() == id
}

// with returns r with id placed in the slot of its kind.
// A single record of the other kind is upgraded to a dual one.
func (r Record) with(id GameID) Record {
	if !r.dual {
		cur := r.Primary()
		if cur.Kind() == id.Kind() {
			return Single(id)
		}
		d, _ := Dual(cur, id)
		return d
	}
	if id.IsBedrock() {
		r.bedrock = id
	} else {
		r.java = id
	}
	return r
}

// without drops id. ok is false when nothing is left.
func (r Record) without(id GameID) (Record, bool) {
	if !r.dual {
		return Record{}, false
	}
	switch id {
	case r.java:
		return Single(r.bedrock), true
	case r.bedrock:
		return Single(r.java), true
	}
	return r, true
}

func (r Record) String() string {
	if r.dual {
		return "[" + r.java.String() + "," + r.bedrock.String() + "]"
	}
	return r.Primary().String()
}
