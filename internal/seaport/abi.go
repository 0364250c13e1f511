package seaport

// settlementABI is the subset of the settlement contract surface this service
// consumes. Tuple layouts must stay in lockstep with the structs in types.go.
const settlementABI = `[
  {
    "name": "getCounter",
    "type": "function",
    "stateMutability": "view",
    "inputs": [{"name": "offerer", "type": "address"}],
    "outputs": [{"name": "counter", "type": "uint256"}]
  },
  {
    "name": "getOrderHash",
    "type": "function",
    "stateMutability": "view",
    "inputs": [
      {
        "name": "order",
        "type": "tuple",
        "components": [
          {"name": "offerer", "type": "address"},
          {"name": "zone", "type": "address"},
          {
            "name": "offer",
            "type": "tuple[]",
            "components": [
              {"name": "itemType", "type": "uint8"},
              {"name": "token", "type": "address"},
              {"name": "identifierOrCriteria", "type": "uint256"},
              {"name": "startAmount", "type": "uint256"},
              {"name": "endAmount", "type": "uint256"}
            ]
          },
          {
            "name": "consideration",
            "type": "tuple[]",
            "components": [
              {"name": "itemType", "type": "uint8"},
              {"name": "token", "type": "address"},
              {"name": "identifierOrCriteria", "type": "uint256"},
              {"name": "startAmount", "type": "uint256"},
              {"name": "endAmount", "type": "uint256"},
              {"name": "recipient", "type": "address"}
            ]
          },
          {"name": "orderType", "type": "uint8"},
          {"name": "startTime", "type": "uint256"},
          {"name": "endTime", "type": "uint256"},
          {"name": "zoneHash", "type": "bytes32"},
          {"name": "salt", "type": "uint256"},
          {"name": "conduitKey", "type": "bytes32"},
          {"name": "counter", "type": "uint256"}
        ]
      }
    ],
    "outputs": [{"name": "orderHash", "type": "bytes32"}]
  },
  {
    "name": "getOrderStatus",
    "type": "function",
    "stateMutability": "view",
    "inputs": [{"name": "orderHash", "type": "bytes32"}],
    "outputs": [
      {"name": "isValidated", "type": "bool"},
      {"name": "isCancelled", "type": "bool"},
      {"name": "totalFilled", "type": "uint256"},
      {"name": "totalSize", "type": "uint256"}
    ]
  },
  {
    "name": "information",
    "type": "function",
    "stateMutability": "view",
    "inputs": [],
    "outputs": [
      {"name": "version", "type": "string"},
      {"name": "domainSeparator", "type": "bytes32"},
      {"name": "conduitController", "type": "address"}
    ]
  },
  {
    "name": "fulfillOrder",
    "type": "function",
    "stateMutability": "payable",
    "inputs": [
      {
        "name": "order",
        "type": "tuple",
        "components": [
          {
            "name": "parameters",
            "type": "tuple",
            "components": [
              {"name": "offerer", "type": "address"},
              {"name": "zone", "type": "address"},
              {
                "name": "offer",
                "type": "tuple[]",
                "components": [
                  {"name": "itemType", "type": "uint8"},
                  {"name": "token", "type": "address"},
                  {"name": "identifierOrCriteria", "type": "uint256"},
                  {"name": "startAmount", "type": "uint256"},
                  {"name": "endAmount", "type": "uint256"}
                ]
              },
              {
                "name": "consideration",
                "type": "tuple[]",
                "components": [
                  {"name": "itemType", "type": "uint8"},
                  {"name": "token", "type": "address"},
                  {"name": "identifierOrCriteria", "type": "uint256"},
                  {"name": "startAmount", "type": "uint256"},
                  {"name": "endAmount", "type": "uint256"},
                  {"name": "recipient", "type": "address"}
                ]
              },
              {"name": "orderType", "type": "uint8"},
              {"name": "startTime", "type": "uint256"},
              {"name": "endTime", "type": "uint256"},
              {"name": "zoneHash", "type": "bytes32"},
              {"name": "salt", "type": "uint256"},
              {"name": "conduitKey", "type": "bytes32"},
              {"name": "totalOriginalConsiderationItems", "type": "uint256"}
            ]
          },
          {"name": "signature", "type": "bytes"}
        ]
      },
      {"name": "fulfillerConduitKey", "type": "bytes32"}
    ],
    "outputs": [{"name": "fulfilled", "type": "bool"}]
  },
  {
    "name": "cancel",
    "type": "function",
    "stateMutability": "nonpayable",
    "inputs": [
      {
        "name": "orders",
        "type": "tuple[]",
        "components": [
          {"name": "offerer", "type": "address"},
          {"name": "zone", "type": "address"},
          {
            "name": "offer",
            "type": "tuple[]",
            "components": [
              {"name": "itemType", "type": "uint8"},
              {"name": "token", "type": "address"},
              {"name": "identifierOrCriteria", "type": "uint256"},
              {"name": "startAmount", "type": "uint256"},
              {"name": "endAmount", "type": "uint256"}
            ]
          },
          {
            "name": "consideration",
            "type": "tuple[]",
            "components": [
              {"name": "itemType", "type": "uint8"},
              {"name": "token", "type": "address"},
              {"name": "identifierOrCriteria", "type": "uint256"},
              {"name": "startAmount", "type": "uint256"},
              {"name": "endAmount", "type": "uint256"},
              {"name": "recipient", "type": "address"}
            ]
          },
          {"name": "orderType", "type": "uint8"},
          {"name": "startTime", "type": "uint256"},
          {"name": "endTime", "type": "uint256"},
          {"name": "zoneHash", "type": "bytes32"},
          {"name": "salt", "type": "uint256"},
          {"name": "conduitKey", "type": "bytes32"},
          {"name": "counter", "type": "uint256"}
        ]
      }
    ],
    "outputs": [{"name": "cancelled", "type": "bool"}]
  }
]`
