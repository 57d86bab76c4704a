package cve

// acl is the capability table: for every handle, the contracts allowed to
// compute on it and the principals allowed to decrypt it.
type acl struct {
	contracts map[Handle]map[string]struct{}
	users     map[Handle]map[string]struct{}
}

func newACL() acl {
	return acl{
		contracts: make(map[Handle]map[string]struct{}),
		users:     make(map[Handle]map[string]struct{}),
	}
}

func (a acl) allowContract(h Handle, contract string) {
	insert(a.contracts, h, contract)
}

func (a acl) allowUser(h Handle, principal string) {
	insert(a.users, h, principal)
}

func (a acl) contractAllowed(h Handle, contract string) bool {
	_, ok := a.contracts[h][contract]
	return ok
}

func (a acl) userAllowed(h Handle, principal string) bool {
	_, ok := a.users[h][principal]
	return ok
}

func insert(rows map[Handle]map[string]struct{}, h Handle, who string) {
	set, ok := rows[h]
	if !ok {
		set = make(map[string]struct{})
		rows[h] = set
	}
	set[who] = struct{}{}
}
